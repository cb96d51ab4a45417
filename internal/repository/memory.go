package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ehs-platform/services/noncompliance/internal/model"
	apperrors "github.com/ehs-platform/services/noncompliance/pkg/errors"
)

// MemoryStore implements CaseStore in memory. Aggregates are cloned on both
// sides of the boundary, so a caller holding a *model.Case can never mutate
// stored state without going through Update's version check.
type MemoryStore struct {
	mu    sync.RWMutex
	cases map[string]*model.Case
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cases: make(map[string]*model.Case)}
}

// Create stores a new case.
func (s *MemoryStore) Create(ctx context.Context, c *model.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cases[c.ID]; exists {
		return apperrors.Conflict("case " + c.ID + " already exists")
	}

	s.cases[c.ID] = c.Clone()
	return nil
}

// Get retrieves a case by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*model.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.cases[id]
	if !exists {
		return nil, apperrors.NotFound("case " + id)
	}

	return c.Clone(), nil
}

// Update commits the aggregate if its version still matches the stored one,
// then advances both copies to version+1.
func (s *MemoryStore) Update(ctx context.Context, c *model.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.cases[c.ID]
	if !exists {
		return apperrors.NotFound("case " + c.ID)
	}
	if stored.Version != c.Version {
		return apperrors.Conflict("case " + c.ID + " was modified concurrently")
	}

	c.Version++
	s.cases[c.ID] = c.Clone()
	return nil
}

// Delete removes a case.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.cases[id]; !exists {
		return apperrors.NotFound("case " + id)
	}

	delete(s.cases, id)
	return nil
}

// List retrieves cases matching the filter, newest first.
func (s *MemoryStore) List(ctx context.Context, filter *model.CaseFilter) (*model.CaseListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*model.Case
	for _, c := range s.cases {
		if matchesFilter(c, filter) {
			matched = append(matched, c.Clone())
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	limit := 50
	offset := 0
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		if filter.Offset > 0 {
			offset = filter.Offset
		}
	}

	start := offset
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}

	return &model.CaseListResult{
		Cases:   matched[start:end],
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: end < len(matched),
	}, nil
}

func matchesFilter(c *model.Case, filter *model.CaseFilter) bool {
	if filter == nil {
		return true
	}

	if len(filter.Status) > 0 {
		found := false
		for _, st := range filter.Status {
			if c.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(filter.Severity) > 0 {
		found := false
		for _, sev := range filter.Severity {
			if c.Severity == sev {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.Category != "" && c.Category != filter.Category {
		return false
	}

	if filter.Investigator != "" && c.AssignedInvestigator != filter.Investigator {
		return false
	}

	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(c.Title), needle) &&
			!strings.Contains(strings.ToLower(c.Description), needle) {
			return false
		}
	}

	return true
}
