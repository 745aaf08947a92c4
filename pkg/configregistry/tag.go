package configregistry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/internal/idgen"
	"github.com/analytiqhub/docrouter/internal/storage"
)

// Tag is a simple, unrevisioned entity used to group documents, prompts,
// and forms, and to gate prompt fanout.
type Tag struct {
	ID             string
	OrganizationID string
	Name           string
	Color          string
	Description    string
	CreatedBy      string
	CreatedAt      time.Time
}

const tagColumns = `id, organization_id, name, color, description, created_by, created_at`

// TagStore manages tags.
type TagStore struct {
	dbtx storage.DBTX
}

// NewTagStore creates a TagStore.
func NewTagStore(dbtx storage.DBTX) *TagStore {
	return &TagStore{dbtx: dbtx}
}

func scanTag(row pgx.Row) (Tag, error) {
	var t Tag
	err := row.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.Color, &t.Description, &t.CreatedBy, &t.CreatedAt)
	return t, err
}

// Create inserts a new tag. Name must be unique per organization
// (case-insensitive); violating that is surfaced as a Conflict.
func (s *TagStore) Create(ctx context.Context, organizationID, name, color, description, createdBy string) (Tag, error) {
	var existing int
	err := s.dbtx.QueryRow(ctx, `SELECT count(*) FROM tags WHERE organization_id = $1 AND lower(name) = lower($2)`, organizationID, name).Scan(&existing)
	if err != nil {
		return Tag{}, fmt.Errorf("checking tag name uniqueness: %w", err)
	}
	if existing > 0 {
		return Tag{}, apperr.New(apperr.Conflict, "a tag with this name already exists")
	}

	id := idgen.New()
	query := `INSERT INTO tags (id, organization_id, name, color, description, created_by)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + tagColumns
	row := s.dbtx.QueryRow(ctx, query, id, organizationID, name, color, description, createdBy)
	return scanTag(row)
}

// Get returns a tag by id.
func (s *TagStore) Get(ctx context.Context, id string) (Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags WHERE id = $1`
	return scanTag(s.dbtx.QueryRow(ctx, query, id))
}

// List returns all tags in an organization.
func (s *TagStore) List(ctx context.Context, organizationID string) ([]Tag, error) {
	query := `SELECT ` + tagColumns + ` FROM tags WHERE organization_id = $1 ORDER BY name ASC`
	rows, err := s.dbtx.Query(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	defer rows.Close()

	var items []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.OrganizationID, &t.Name, &t.Color, &t.Description, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning tag row: %w", err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tag rows: %w", err)
	}
	return items, nil
}

// Update changes a tag's editable fields.
func (s *TagStore) Update(ctx context.Context, id, name, color, description string) (Tag, error) {
	query := `UPDATE tags SET name = $2, color = $3, description = $4 WHERE id = $1 RETURNING ` + tagColumns
	row := s.dbtx.QueryRow(ctx, query, id, name, color, description)
	return scanTag(row)
}

// Delete removes a tag. Refuses if referenced by any document, prompt,
// form, or telemetry record.
func (s *TagStore) Delete(ctx context.Context, id string) error {
	checks := []string{
		`SELECT count(*) FROM docs WHERE $1 = ANY(tag_ids)`,
		`SELECT count(*) FROM prompt_revisions WHERE $1 = ANY(tag_ids)`,
		`SELECT count(*) FROM form_revisions WHERE $1 = ANY(tag_ids)`,
		`SELECT count(*) FROM telemetry_traces WHERE $1 = ANY(tag_ids)`,
		`SELECT count(*) FROM telemetry_metrics WHERE $1 = ANY(tag_ids)`,
		`SELECT count(*) FROM telemetry_logs WHERE $1 = ANY(tag_ids)`,
	}
	for _, check := range checks {
		var count int
		if err := s.dbtx.QueryRow(ctx, check, id).Scan(&count); err != nil {
			return fmt.Errorf("checking tag references: %w", err)
		}
		if count > 0 {
			return apperr.New(apperr.Conflict, "tag is still referenced")
		}
	}

	tag, err := s.dbtx.Exec(ctx, `DELETE FROM tags WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting tag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
