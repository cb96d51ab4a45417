// Package rca validates root-cause analyses against the severity policy.
package rca

import (
	"strings"

	"github.com/ehs-platform/services/noncompliance/internal/model"
	"github.com/ehs-platform/services/noncompliance/internal/policy"
	apperrors "github.com/ehs-platform/services/noncompliance/pkg/errors"
)

// Depth computes the analysis depth of an RCA per variant: for five-whys
// the count of levels with a non-empty answer, for fishbone the count of
// non-empty causes across all categories.
func Depth(r *model.RCA) int {
	switch r.Type {
	case model.RCATypeFiveWhys:
		if r.FiveWhys == nil {
			return 0
		}
		depth := 0
		for _, level := range r.FiveWhys.Levels {
			if strings.TrimSpace(level.Answer) != "" {
				depth++
			}
		}
		return depth
	case model.RCATypeFishbone:
		if r.Fishbone == nil {
			return 0
		}
		depth := 0
		for _, causes := range r.Fishbone.Causes {
			for _, cause := range causes {
				if strings.TrimSpace(cause) != "" {
					depth++
				}
			}
		}
		return depth
	default:
		return 0
	}
}

// ValidateShape checks the structural constraints of a submitted analysis:
// the variant payload must match the declared type and a five-whys chain is
// capped at seven levels.
func ValidateShape(r *model.RCA) error {
	switch r.Type {
	case model.RCATypeFiveWhys:
		if r.FiveWhys == nil {
			return apperrors.Validation("five-whys analysis payload is missing")
		}
		if len(r.FiveWhys.Levels) > model.MaxWhyLevels {
			return apperrors.Validation("a five-whys chain supports at most 7 levels")
		}
	case model.RCATypeFishbone:
		if r.Fishbone == nil {
			return apperrors.Validation("fishbone analysis payload is missing")
		}
	default:
		return apperrors.Validation("unknown RCA type: " + string(r.Type))
	}
	return nil
}

// ValidateForApproval checks an RCA against the severity policy before it
// may be approved. Fails with INSUFFICIENT_ANALYSIS (carrying required vs.
// actual depth) or INCOMPLETE when the conclusion is empty.
func ValidateForApproval(r *model.RCA, severity model.Severity) error {
	if strings.TrimSpace(r.Conclusion) == "" {
		return apperrors.Incomplete("RCA conclusion is required")
	}

	required := policy.MinRCADepth(severity)
	if actual := Depth(r); actual < required {
		return apperrors.InsufficientAnalysis(required, actual)
	}

	return nil
}
