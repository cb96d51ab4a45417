package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ehs-platform/services/noncompliance/internal/model"
	apperrors "github.com/ehs-platform/services/noncompliance/pkg/errors"
)

// PostgresStore implements CaseStore on PostgreSQL. One row per case, child
// tables for RCAs/CAPAs/verifications and timeline entries, all written in
// a single transaction whose case UPDATE carries the version guard.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a new case aggregate.
func (s *PostgresStore) Create(ctx context.Context, c *model.Case) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO cases (
			id, number, title, description, category, severity, status,
			location, site, is_confidential, assigned_investigator,
			reported_by, due_date, containment_actions, version,
			created_at, updated_at
		) VALUES (
			:id, :number, :title, :description, :category, :severity, :status,
			:location, :site, :is_confidential, :assigned_investigator,
			:reported_by, :due_date, :containment_actions, :version,
			:created_at, :updated_at
		)
	`
	if _, err := tx.NamedExecContext(ctx, query, toDBCase(c)); err != nil {
		return fmt.Errorf("failed to insert case: %w", err)
	}

	if err := s.writeChildren(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit case insert: %w", err)
	}
	return nil
}

// Get retrieves a case aggregate by ID, including children and timeline.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Case, error) {
	var row dbCase
	err := s.db.GetContext(ctx, &row, `SELECT * FROM cases WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("case " + id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get case: %w", err)
	}

	c := fromDBCase(&row)
	if err := s.loadChildren(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Update commits the aggregate under the version guard: the case UPDATE is
// conditioned on the version the caller read, and all child rows ride the
// same transaction. A guard miss on an existing case reports CONFLICT.
func (s *PostgresStore) Update(ctx context.Context, c *model.Case) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE cases SET
			title = :title,
			description = :description,
			category = :category,
			severity = :severity,
			status = :status,
			location = :location,
			site = :site,
			is_confidential = :is_confidential,
			assigned_investigator = :assigned_investigator,
			due_date = :due_date,
			containment_actions = :containment_actions,
			version = :version + 1,
			updated_at = :updated_at
		WHERE id = :id AND version = :version
	`
	result, err := tx.NamedExecContext(ctx, query, toDBCase(c))
	if err != nil {
		return fmt.Errorf("failed to update case: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM cases WHERE id = $1)`, c.ID); err != nil {
			return fmt.Errorf("failed to check case existence: %w", err)
		}
		if !exists {
			return apperrors.NotFound("case " + c.ID)
		}
		return apperrors.Conflict("case " + c.ID + " was modified concurrently")
	}

	if err := s.writeChildren(ctx, tx, c); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit case update: %w", err)
	}

	c.Version++
	return nil
}

// Delete removes a case and its children.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM cases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete case: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.NotFound("case " + id)
	}
	return nil
}

// List retrieves cases matching the filter. Children are not loaded for
// list views; callers follow up with Get for the full aggregate.
func (s *PostgresStore) List(ctx context.Context, filter *model.CaseFilter) (*model.CaseListResult, error) {
	if filter == nil {
		filter = &model.CaseFilter{}
	}

	conditions := []string{"1=1"}
	var args []interface{}

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, st := range filter.Status {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	if len(filter.Severity) > 0 {
		severities := make([]string, len(filter.Severity))
		for i, sev := range filter.Severity {
			severities[i] = string(sev)
		}
		args = append(args, pq.Array(severities))
		conditions = append(conditions, fmt.Sprintf("severity = ANY($%d)", len(args)))
	}

	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}

	if filter.Investigator != "" {
		args = append(args, filter.Investigator)
		conditions = append(conditions, fmt.Sprintf("assigned_investigator = $%d", len(args)))
	}

	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	whereClause := strings.Join(conditions, " AND ")

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM cases WHERE %s", whereClause)
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, fmt.Errorf("failed to count cases: %w", err)
	}

	limit := 50
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	offset := 0
	if filter.Offset > 0 {
		offset = filter.Offset
	}

	args = append(args, limit)
	limitArg := len(args)
	args = append(args, offset)
	offsetArg := len(args)

	query := fmt.Sprintf(`
		SELECT * FROM cases
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, limitArg, offsetArg)

	var rows []dbCase
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}

	cases := make([]*model.Case, len(rows))
	for i := range rows {
		cases[i] = fromDBCase(&rows[i])
	}

	return &model.CaseListResult{
		Cases:   cases,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: int64(offset+limit) < total,
	}, nil
}

// writeChildren upserts RCA/CAPA/verification rows and appends new timeline
// entries. Timeline inserts conflict-skip on (case_id, seq), so existing
// entries are never rewritten.
func (s *PostgresStore) writeChildren(ctx context.Context, tx *sqlx.Tx, c *model.Case) error {
	for _, r := range c.RCAs {
		row, err := toDBRCA(r)
		if err != nil {
			return err
		}
		query := `
			INSERT INTO rcas (id, case_id, type, status, conclusion, analysis, created_by, created_at, updated_at)
			VALUES (:id, :case_id, :type, :status, :conclusion, :analysis, :created_by, :created_at, :updated_at)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				conclusion = EXCLUDED.conclusion,
				analysis = EXCLUDED.analysis,
				updated_at = EXCLUDED.updated_at
		`
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to write RCA %s: %w", r.ID, err)
		}
	}

	for _, a := range c.CAPAs {
		row, err := toDBCAPA(a)
		if err != nil {
			return err
		}
		query := `
			INSERT INTO capas (id, case_id, type, status, title, description, owner, due_date, evidence, notes, completed_date, created_at, updated_at)
			VALUES (:id, :case_id, :type, :status, :title, :description, :owner, :due_date, :evidence, :notes, :completed_date, :created_at, :updated_at)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				evidence = EXCLUDED.evidence,
				notes = EXCLUDED.notes,
				completed_date = EXCLUDED.completed_date,
				updated_at = EXCLUDED.updated_at
		`
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to write CAPA %s: %w", a.ID, err)
		}
	}

	for _, v := range c.Verifications {
		row, err := toDBVerification(v)
		if err != nil {
			return err
		}
		query := `
			INSERT INTO verifications (id, case_id, effectiveness_rating, before_evidence, after_evidence, notes, verified_by, created_at)
			VALUES (:id, :case_id, :effectiveness_rating, :before_evidence, :after_evidence, :notes, :verified_by, :created_at)
			ON CONFLICT (id) DO NOTHING
		`
		if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
			return fmt.Errorf("failed to write verification %s: %w", v.ID, err)
		}
	}

	for _, entry := range c.Timeline {
		query := `
			INSERT INTO case_timeline (case_id, seq, action, actor, detail, timestamp)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (case_id, seq) DO NOTHING
		`
		if _, err := tx.ExecContext(ctx, query, c.ID, entry.Seq, entry.Action, entry.Actor, entry.Detail, entry.Timestamp); err != nil {
			return fmt.Errorf("failed to write timeline entry %d: %w", entry.Seq, err)
		}
	}

	return nil
}

func (s *PostgresStore) loadChildren(ctx context.Context, c *model.Case) error {
	var rcaRows []dbRCA
	if err := s.db.SelectContext(ctx, &rcaRows, `SELECT * FROM rcas WHERE case_id = $1 ORDER BY created_at`, c.ID); err != nil {
		return fmt.Errorf("failed to load RCAs: %w", err)
	}
	c.RCAs = make([]*model.RCA, len(rcaRows))
	for i := range rcaRows {
		r, err := fromDBRCA(&rcaRows[i])
		if err != nil {
			return err
		}
		c.RCAs[i] = r
	}

	var capaRows []dbCAPA
	if err := s.db.SelectContext(ctx, &capaRows, `SELECT * FROM capas WHERE case_id = $1 ORDER BY created_at`, c.ID); err != nil {
		return fmt.Errorf("failed to load CAPAs: %w", err)
	}
	c.CAPAs = make([]*model.CAPA, len(capaRows))
	for i := range capaRows {
		a, err := fromDBCAPA(&capaRows[i])
		if err != nil {
			return err
		}
		c.CAPAs[i] = a
	}

	var verRows []dbVerification
	if err := s.db.SelectContext(ctx, &verRows, `SELECT * FROM verifications WHERE case_id = $1 ORDER BY created_at`, c.ID); err != nil {
		return fmt.Errorf("failed to load verifications: %w", err)
	}
	c.Verifications = make([]*model.Verification, len(verRows))
	for i := range verRows {
		v, err := fromDBVerification(&verRows[i])
		if err != nil {
			return err
		}
		c.Verifications[i] = v
	}

	if err := s.db.SelectContext(ctx, &c.Timeline, `SELECT seq, action, actor, detail, timestamp FROM case_timeline WHERE case_id = $1 ORDER BY seq`, c.ID); err != nil {
		return fmt.Errorf("failed to load timeline: %w", err)
	}

	return nil
}

// Database row types and conversion helpers.

type dbCase struct {
	ID                   string         `db:"id"`
	Number               string         `db:"number"`
	Title                string         `db:"title"`
	Description          string         `db:"description"`
	Category             string         `db:"category"`
	Severity             string         `db:"severity"`
	Status               string         `db:"status"`
	Location             string         `db:"location"`
	Site                 string         `db:"site"`
	IsConfidential       bool           `db:"is_confidential"`
	AssignedInvestigator sql.NullString `db:"assigned_investigator"`
	ReportedBy           string         `db:"reported_by"`
	DueDate              *time.Time     `db:"due_date"`
	ContainmentActions   sql.NullString `db:"containment_actions"`
	Version              int64          `db:"version"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func toDBCase(c *model.Case) *dbCase {
	row := &dbCase{
		ID:             c.ID,
		Number:         c.Number,
		Title:          c.Title,
		Description:    c.Description,
		Category:       c.Category,
		Severity:       string(c.Severity),
		Status:         string(c.Status),
		Location:       c.Location,
		Site:           c.Site,
		IsConfidential: c.IsConfidential,
		ReportedBy:     c.ReportedBy,
		DueDate:        c.DueDate,
		Version:        c.Version,
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}

	if c.AssignedInvestigator != "" {
		row.AssignedInvestigator = sql.NullString{String: c.AssignedInvestigator, Valid: true}
	}
	if c.ContainmentActions != "" {
		row.ContainmentActions = sql.NullString{String: c.ContainmentActions, Valid: true}
	}

	return row
}

func fromDBCase(row *dbCase) *model.Case {
	c := &model.Case{
		ID:             row.ID,
		Number:         row.Number,
		Title:          row.Title,
		Description:    row.Description,
		Category:       row.Category,
		Severity:       model.Severity(row.Severity),
		Status:         model.CaseStatus(row.Status),
		Location:       row.Location,
		Site:           row.Site,
		IsConfidential: row.IsConfidential,
		ReportedBy:     row.ReportedBy,
		DueDate:        row.DueDate,
		Version:        row.Version,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}

	if row.AssignedInvestigator.Valid {
		c.AssignedInvestigator = row.AssignedInvestigator.String
	}
	if row.ContainmentActions.Valid {
		c.ContainmentActions = row.ContainmentActions.String
	}

	return c
}

// JSON payloads travel as text: lib/pq encodes []byte parameters as bytea,
// which a jsonb column rejects.
type dbRCA struct {
	ID         string    `db:"id"`
	CaseID     string    `db:"case_id"`
	Type       string    `db:"type"`
	Status     string    `db:"status"`
	Conclusion string    `db:"conclusion"`
	Analysis   string    `db:"analysis"`
	CreatedBy  string    `db:"created_by"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// rcaAnalysis is the JSON envelope for the variant payload.
type rcaAnalysis struct {
	FiveWhys *model.FiveWhysAnalysis `json:"five_whys,omitempty"`
	Fishbone *model.FishboneAnalysis `json:"fishbone,omitempty"`
}

func toDBRCA(r *model.RCA) (*dbRCA, error) {
	analysis, err := json.Marshal(rcaAnalysis{FiveWhys: r.FiveWhys, Fishbone: r.Fishbone})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal RCA analysis: %w", err)
	}

	return &dbRCA{
		ID:         r.ID,
		CaseID:     r.CaseID,
		Type:       string(r.Type),
		Status:     string(r.Status),
		Conclusion: r.Conclusion,
		Analysis:   string(analysis),
		CreatedBy:  r.CreatedBy,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

func fromDBRCA(row *dbRCA) (*model.RCA, error) {
	var analysis rcaAnalysis
	if row.Analysis != "" {
		if err := json.Unmarshal([]byte(row.Analysis), &analysis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal RCA analysis: %w", err)
		}
	}

	return &model.RCA{
		ID:         row.ID,
		CaseID:     row.CaseID,
		Type:       model.RCAType(row.Type),
		Status:     model.RCAStatus(row.Status),
		Conclusion: row.Conclusion,
		FiveWhys:   analysis.FiveWhys,
		Fishbone:   analysis.Fishbone,
		CreatedBy:  row.CreatedBy,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}, nil
}

type dbCAPA struct {
	ID            string         `db:"id"`
	CaseID        string         `db:"case_id"`
	Type          string         `db:"type"`
	Status        string         `db:"status"`
	Title         string         `db:"title"`
	Description   sql.NullString `db:"description"`
	Owner         sql.NullString `db:"owner"`
	DueDate       time.Time      `db:"due_date"`
	Evidence      string         `db:"evidence"`
	Notes         sql.NullString `db:"notes"`
	CompletedDate *time.Time     `db:"completed_date"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func toDBCAPA(a *model.CAPA) (*dbCAPA, error) {
	row := &dbCAPA{
		ID:            a.ID,
		CaseID:        a.CaseID,
		Type:          string(a.Type),
		Status:        string(a.Status),
		Title:         a.Title,
		DueDate:       a.DueDate,
		CompletedDate: a.CompletedDate,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}

	if a.Description != "" {
		row.Description = sql.NullString{String: a.Description, Valid: true}
	}
	if a.Owner != "" {
		row.Owner = sql.NullString{String: a.Owner, Valid: true}
	}
	if a.Notes != "" {
		row.Notes = sql.NullString{String: a.Notes, Valid: true}
	}

	evidence := a.Evidence
	if evidence == nil {
		evidence = []string{}
	}
	data, err := json.Marshal(evidence)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal CAPA evidence: %w", err)
	}
	row.Evidence = string(data)

	return row, nil
}

func fromDBCAPA(row *dbCAPA) (*model.CAPA, error) {
	a := &model.CAPA{
		ID:            row.ID,
		CaseID:        row.CaseID,
		Type:          model.CAPAType(row.Type),
		Status:        model.CAPAStatus(row.Status),
		Title:         row.Title,
		DueDate:       row.DueDate,
		CompletedDate: row.CompletedDate,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}

	if row.Description.Valid {
		a.Description = row.Description.String
	}
	if row.Owner.Valid {
		a.Owner = row.Owner.String
	}
	if row.Notes.Valid {
		a.Notes = row.Notes.String
	}
	if row.Evidence != "" {
		if err := json.Unmarshal([]byte(row.Evidence), &a.Evidence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal CAPA evidence: %w", err)
		}
	}

	return a, nil
}

type dbVerification struct {
	ID                  string         `db:"id"`
	CaseID              string         `db:"case_id"`
	EffectivenessRating string         `db:"effectiveness_rating"`
	BeforeEvidence      string         `db:"before_evidence"`
	AfterEvidence       string         `db:"after_evidence"`
	Notes               sql.NullString `db:"notes"`
	VerifiedBy          string         `db:"verified_by"`
	CreatedAt           time.Time      `db:"created_at"`
}

func toDBVerification(v *model.Verification) (*dbVerification, error) {
	row := &dbVerification{
		ID:                  v.ID,
		CaseID:              v.CaseID,
		EffectivenessRating: string(v.EffectivenessRating),
		VerifiedBy:          v.VerifiedBy,
		CreatedAt:           v.CreatedAt,
	}

	if v.Notes != "" {
		row.Notes = sql.NullString{String: v.Notes, Valid: true}
	}

	before := v.BeforeEvidence
	if before == nil {
		before = []string{}
	}
	data, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal before evidence: %w", err)
	}
	row.BeforeEvidence = string(data)

	after := v.AfterEvidence
	if after == nil {
		after = []string{}
	}
	data, err = json.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal after evidence: %w", err)
	}
	row.AfterEvidence = string(data)

	return row, nil
}

func fromDBVerification(row *dbVerification) (*model.Verification, error) {
	v := &model.Verification{
		ID:                  row.ID,
		CaseID:              row.CaseID,
		EffectivenessRating: model.EffectivenessRating(row.EffectivenessRating),
		VerifiedBy:          row.VerifiedBy,
		CreatedAt:           row.CreatedAt,
	}

	if row.Notes.Valid {
		v.Notes = row.Notes.String
	}
	if row.BeforeEvidence != "" {
		if err := json.Unmarshal([]byte(row.BeforeEvidence), &v.BeforeEvidence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal before evidence: %w", err)
		}
	}
	if row.AfterEvidence != "" {
		if err := json.Unmarshal([]byte(row.AfterEvidence), &v.AfterEvidence); err != nil {
			return nil, fmt.Errorf("failed to unmarshal after evidence: %w", err)
		}
	}

	return v, nil
}
