// Package repository provides the authoritative store of cases and their
// child records, with per-case optimistic versioning.
package repository

import (
	"context"

	"github.com/ehs-platform/services/noncompliance/internal/model"
)

// CaseStore is the persistence boundary for case aggregates. Update is
// compare-and-swap on Case.Version: the caller passes the aggregate holding
// the version it read; the store commits version+1 atomically with every
// embedded child record and timeline entry, or fails with CONFLICT when the
// stored version has since advanced. Unrelated cases never contend.
type CaseStore interface {
	Create(ctx context.Context, c *model.Case) error
	Get(ctx context.Context, id string) (*model.Case, error)
	Update(ctx context.Context, c *model.Case) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter *model.CaseFilter) (*model.CaseListResult, error)
}
