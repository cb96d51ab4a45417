package model

import "time"

// RCAType discriminates the two root-cause analysis shapes.
type RCAType string

const (
	RCATypeFiveWhys RCAType = "five_whys"
	RCATypeFishbone RCAType = "fishbone"
)

// RCAStatus represents the analysis review state.
type RCAStatus string

const (
	RCAStatusDraft     RCAStatus = "draft"
	RCAStatusSubmitted RCAStatus = "submitted"
	RCAStatusApproved  RCAStatus = "approved"
	RCAStatusRejected  RCAStatus = "rejected"
)

// MaxWhyLevels bounds a five-whys chain.
const MaxWhyLevels = 7

// WhyLevel is one question/answer pair in a five-whys chain.
type WhyLevel struct {
	Level    int    `json:"level"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// FishboneCategory names one of the six fixed cause categories.
type FishboneCategory string

const (
	FishbonePeople      FishboneCategory = "people"
	FishboneProcess     FishboneCategory = "process"
	FishboneEquipment   FishboneCategory = "equipment"
	FishboneMaterials   FishboneCategory = "materials"
	FishboneEnvironment FishboneCategory = "environment"
	FishboneMeasurement FishboneCategory = "measurement"
)

// FishboneCategories lists the fixed category set in display order.
var FishboneCategories = []FishboneCategory{
	FishbonePeople,
	FishboneProcess,
	FishboneEquipment,
	FishboneMaterials,
	FishboneEnvironment,
	FishboneMeasurement,
}

// FiveWhysAnalysis holds the ordered why-levels of a five-whys RCA.
type FiveWhysAnalysis struct {
	Levels []WhyLevel `json:"levels"`
}

// FishboneAnalysis holds a problem statement plus causes grouped by the
// six fixed categories.
type FishboneAnalysis struct {
	ProblemStatement string                        `json:"problem_statement"`
	Causes           map[FishboneCategory][]string `json:"causes"`
}

// RCA is a root-cause analysis attached to exactly one case. Exactly one of
// FiveWhys/Fishbone is set, matching Type. Immutable once approved.
type RCA struct {
	ID         string    `json:"id" db:"id"`
	CaseID     string    `json:"case_id" db:"case_id"`
	Type       RCAType   `json:"type" db:"type"`
	Status     RCAStatus `json:"status" db:"status"`
	Conclusion string    `json:"conclusion" db:"conclusion"`

	FiveWhys *FiveWhysAnalysis `json:"five_whys,omitempty"`
	Fishbone *FishboneAnalysis `json:"fishbone,omitempty"`

	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy of the RCA.
func (r *RCA) Clone() *RCA {
	cp := *r

	if r.FiveWhys != nil {
		fw := FiveWhysAnalysis{Levels: make([]WhyLevel, len(r.FiveWhys.Levels))}
		copy(fw.Levels, r.FiveWhys.Levels)
		cp.FiveWhys = &fw
	}

	if r.Fishbone != nil {
		fb := FishboneAnalysis{
			ProblemStatement: r.Fishbone.ProblemStatement,
			Causes:           make(map[FishboneCategory][]string, len(r.Fishbone.Causes)),
		}
		for cat, causes := range r.Fishbone.Causes {
			cs := make([]string, len(causes))
			copy(cs, causes)
			fb.Causes[cat] = cs
		}
		cp.Fishbone = &fb
	}

	return &cp
}

// SaveRCARequest represents a request to save or submit an RCA.
type SaveRCARequest struct {
	Type       RCAType           `json:"type"`
	Conclusion string            `json:"conclusion"`
	FiveWhys   *FiveWhysAnalysis `json:"five_whys,omitempty"`
	Fishbone   *FishboneAnalysis `json:"fishbone,omitempty"`
	Submit     bool              `json:"submit"` // false saves a draft
}
