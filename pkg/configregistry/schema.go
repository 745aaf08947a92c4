package configregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/internal/idgen"
	"github.com/analytiqhub/docrouter/internal/storage"
)

// SchemaRevision is one immutable revision of a JSON-Schema response
// format, paired with a stable Schema logical id.
type SchemaRevision struct {
	SchemaRevID    string
	SchemaID       string
	SchemaVersion  int
	Name           string
	ResponseFormat json.RawMessage
	CreatedAt      time.Time
	CreatedBy      string
}

var schemaTables = Tables{Parent: "schemas", Revision: "schema_revisions", ParentIDCol: "schema_id", VersionCol: "schema_version"}

const schemaRevisionColumns = `schema_revid, schema_id, schema_version, response_format, created_at, created_by`

// SchemaStore implements the generic revisioning algorithm for schemas.
type SchemaStore struct {
	Base
	dbtx storage.DBTX
}

// NewSchemaStore creates a SchemaStore.
func NewSchemaStore(dbtx storage.DBTX) *SchemaStore {
	return &SchemaStore{Base: NewBase(dbtx, schemaTables), dbtx: dbtx}
}

func scanSchemaRevision(row pgx.Row) (SchemaRevision, error) {
	var r SchemaRevision
	err := row.Scan(&r.SchemaRevID, &r.SchemaID, &r.SchemaVersion, &r.ResponseFormat, &r.CreatedAt, &r.CreatedBy)
	return r, err
}

// Create allocates (or reuses, by case-insensitive name) a logical schema
// id and appends its first or next revision.
func (s *SchemaStore) Create(ctx context.Context, organizationID, name string, responseFormat json.RawMessage, createdBy string) (SchemaRevision, error) {
	logicalID, _, err := s.ResolveLogicalID(ctx, organizationID, name)
	if err != nil {
		return SchemaRevision{}, fmt.Errorf("creating schema: %w", err)
	}

	version, err := s.NextVersion(ctx, logicalID)
	if err != nil {
		return SchemaRevision{}, fmt.Errorf("creating schema: %w", err)
	}

	revID := idgen.New()
	query := `INSERT INTO schema_revisions (schema_revid, schema_id, schema_version, response_format, created_by)
		VALUES ($1, $2, $3, $4, $5) RETURNING ` + schemaRevisionColumns
	row := s.dbtx.QueryRow(ctx, query, revID, logicalID, version, responseFormat, createdBy)
	rev, err := scanSchemaRevision(row)
	if err != nil {
		return SchemaRevision{}, fmt.Errorf("inserting schema revision: %w", err)
	}
	rev.Name = name
	return rev, nil
}

// GetLatest returns the highest-versioned revision for a logical schema id.
func (s *SchemaStore) GetLatest(ctx context.Context, schemaID string) (SchemaRevision, error) {
	query := `SELECT ` + schemaRevisionColumns + ` FROM schema_revisions WHERE schema_id = $1 ORDER BY schema_version DESC LIMIT 1`
	row := s.dbtx.QueryRow(ctx, query, schemaID)
	rev, err := scanSchemaRevision(row)
	if err != nil {
		return SchemaRevision{}, err
	}
	rev.Name, err = s.ParentName(ctx, schemaID)
	return rev, err
}

// GetRevision returns a specific schema revision by its revision id.
func (s *SchemaStore) GetRevision(ctx context.Context, schemaRevID string) (SchemaRevision, error) {
	query := `SELECT ` + schemaRevisionColumns + ` FROM schema_revisions WHERE schema_revid = $1`
	row := s.dbtx.QueryRow(ctx, query, schemaRevID)
	rev, err := scanSchemaRevision(row)
	if err != nil {
		return SchemaRevision{}, err
	}
	rev.Name, err = s.ParentName(ctx, rev.SchemaID)
	return rev, err
}

// GetVersion returns a specific version of a logical schema id.
func (s *SchemaStore) GetVersion(ctx context.Context, schemaID string, version int) (SchemaRevision, error) {
	query := `SELECT ` + schemaRevisionColumns + ` FROM schema_revisions WHERE schema_id = $1 AND schema_version = $2`
	row := s.dbtx.QueryRow(ctx, query, schemaID, version)
	rev, err := scanSchemaRevision(row)
	if err != nil {
		return SchemaRevision{}, err
	}
	rev.Name, err = s.ParentName(ctx, schemaID)
	return rev, err
}

// Update applies the generic name-only-change optimization: if only the
// name changed, the parent is renamed in place and the latest revision is
// returned unchanged; otherwise a new revision is appended.
func (s *SchemaStore) Update(ctx context.Context, schemaID, newName string, responseFormat json.RawMessage, createdBy string) (SchemaRevision, error) {
	latest, err := s.GetLatest(ctx, schemaID)
	if err != nil {
		return SchemaRevision{}, fmt.Errorf("loading latest schema revision: %w", err)
	}

	nameChanged := newName != "" && newName != latest.Name
	fieldsUnchanged := bytes.Equal(normalizeJSON(responseFormat), normalizeJSON(latest.ResponseFormat))

	if nameChanged && fieldsUnchanged {
		if err := s.RenameParent(ctx, schemaID, newName); err != nil {
			return SchemaRevision{}, fmt.Errorf("renaming schema: %w", err)
		}
		latest.Name = newName
		return latest, nil
	}

	version, err := s.NextVersion(ctx, schemaID)
	if err != nil {
		return SchemaRevision{}, fmt.Errorf("updating schema: %w", err)
	}
	if nameChanged {
		if err := s.RenameParent(ctx, schemaID, newName); err != nil {
			return SchemaRevision{}, fmt.Errorf("renaming schema: %w", err)
		}
	}

	revID := idgen.New()
	query := `INSERT INTO schema_revisions (schema_revid, schema_id, schema_version, response_format, created_by)
		VALUES ($1, $2, $3, $4, $5) RETURNING ` + schemaRevisionColumns
	row := s.dbtx.QueryRow(ctx, query, revID, schemaID, version, responseFormat, createdBy)
	rev, err := scanSchemaRevision(row)
	if err != nil {
		return SchemaRevision{}, fmt.Errorf("inserting schema revision: %w", err)
	}
	if nameChanged {
		rev.Name = newName
	} else {
		rev.Name = latest.Name
	}
	return rev, nil
}

// List returns the latest revision per logical schema id in an
// organization, paginated and optionally filtered by case-insensitive
// name search.
func (s *SchemaStore) List(ctx context.Context, organizationID, nameSearch string, limit, offset int) ([]SchemaRevision, int, error) {
	where := `p.organization_id = $1`
	args := []any{organizationID}
	if nameSearch != "" {
		where += ` AND p.name ILIKE $2`
		args = append(args, "%"+nameSearch+"%")
	}

	countQuery := fmt.Sprintf(`SELECT count(*) FROM schemas p WHERE %s`, where)
	var total int
	if err := s.dbtx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting schemas: %w", err)
	}

	listArgs := append(append([]any{}, args...), limit, offset)
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (sr.schema_id) %s, p.name
		FROM schema_revisions sr
		JOIN schemas p ON p.id = sr.schema_id
		WHERE %s
		ORDER BY sr.schema_id, sr.schema_version DESC
		LIMIT $%d OFFSET $%d
	`, prefixColumns("sr", schemaRevisionColumns), where, len(args)+1, len(args)+2)

	rows, err := s.dbtx.Query(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing schemas: %w", err)
	}
	defer rows.Close()

	var items []SchemaRevision
	for rows.Next() {
		var r SchemaRevision
		if err := rows.Scan(&r.SchemaRevID, &r.SchemaID, &r.SchemaVersion, &r.ResponseFormat, &r.CreatedAt, &r.CreatedBy, &r.Name); err != nil {
			return nil, 0, fmt.Errorf("scanning schema row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating schema rows: %w", err)
	}
	return items, total, nil
}

// Delete removes a logical schema id and all its revisions. Refuses,
// naming the referring prompts, if any prompt revision still references
// it.
func (s *SchemaStore) Delete(ctx context.Context, schemaID string) error {
	rows, err := s.dbtx.Query(ctx, `SELECT DISTINCT prompt_id FROM prompt_revisions WHERE schema_id = $1`, schemaID)
	if err != nil {
		return fmt.Errorf("checking schema references: %w", err)
	}
	var promptIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning referring prompt id: %w", err)
		}
		promptIDs = append(promptIDs, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating referring prompt ids: %w", err)
	}
	rows.Close()

	if len(promptIDs) > 0 {
		return apperr.New(apperr.Conflict, fmt.Sprintf("schema is referenced by prompts: %s", strings.Join(promptIDs, ", ")))
	}
	return s.DeleteParent(ctx, schemaID)
}
