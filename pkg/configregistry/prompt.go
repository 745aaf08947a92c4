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

// DefaultPromptRevID is the literal revision id used for the implicit,
// schema-less free-form extraction prompt that always coexists alongside
// an org's concrete prompt revisions.
const DefaultPromptRevID = "default"

// PromptRevision is one immutable revision of a prompt.
type PromptRevision struct {
	PromptRevID    string
	PromptID       string
	PromptVersion  int
	Name           string
	Content        string
	Model          string
	TagIDs         []string
	SchemaID       *string
	SchemaVersion  *int
	OrganizationID string
	CreatedAt      time.Time
	CreatedBy      string
}

var promptTables = Tables{Parent: "prompts", Revision: "prompt_revisions", ParentIDCol: "prompt_id", VersionCol: "prompt_version"}

const promptRevisionColumns = `prompt_revid, prompt_id, prompt_version, content, model, tag_ids,
	schema_id, schema_version, organization_id, created_at, created_by`

// PromptStore implements the generic revisioning algorithm for prompts,
// plus prompt-specific schema reference resolution.
type PromptStore struct {
	Base
	dbtx    storage.DBTX
	schemas *SchemaStore
}

// NewPromptStore creates a PromptStore. schemas is used to resolve a
// prompt's schema_id to its latest schema_version when the caller omits it.
func NewPromptStore(dbtx storage.DBTX, schemas *SchemaStore) *PromptStore {
	return &PromptStore{Base: NewBase(dbtx, promptTables), dbtx: dbtx, schemas: schemas}
}

func scanPromptRevision(row pgx.Row) (PromptRevision, error) {
	var r PromptRevision
	err := row.Scan(&r.PromptRevID, &r.PromptID, &r.PromptVersion, &r.Content, &r.Model, &r.TagIDs,
		&r.SchemaID, &r.SchemaVersion, &r.OrganizationID, &r.CreatedAt, &r.CreatedBy)
	return r, err
}

// resolveSchema implements validate_and_resolve_schema: if schemaID is set
// without schemaVersion, fetch the latest schema revision for schemaID and
// return its version; if both are set, validate the referenced revision
// exists.
func (s *PromptStore) resolveSchema(ctx context.Context, schemaID *string, schemaVersion *int) (*int, error) {
	if schemaID == nil {
		return nil, nil
	}
	if schemaVersion != nil {
		if _, err := s.schemas.GetVersion(ctx, *schemaID, *schemaVersion); err != nil {
			return nil, apperr.Wrap(apperr.Validation, "referenced schema version does not exist", err)
		}
		return schemaVersion, nil
	}

	latest, err := s.schemas.GetLatest(ctx, *schemaID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Validation, "referenced schema does not exist", err)
	}
	return &latest.SchemaVersion, nil
}

// Create allocates (or reuses) a logical prompt id and appends its first or
// next revision.
func (s *PromptStore) Create(ctx context.Context, organizationID, name, content, model string, tagIDs []string, schemaID *string, schemaVersion *int, createdBy string) (PromptRevision, error) {
	resolvedVersion, err := s.resolveSchema(ctx, schemaID, schemaVersion)
	if err != nil {
		return PromptRevision{}, err
	}

	logicalID, _, err := s.ResolveLogicalID(ctx, organizationID, name)
	if err != nil {
		return PromptRevision{}, fmt.Errorf("creating prompt: %w", err)
	}

	version, err := s.NextVersion(ctx, logicalID)
	if err != nil {
		return PromptRevision{}, fmt.Errorf("creating prompt: %w", err)
	}

	revID := idgen.New()
	query := `INSERT INTO prompt_revisions (prompt_revid, prompt_id, prompt_version, content, model, tag_ids, schema_id, schema_version, organization_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING ` + promptRevisionColumns
	row := s.dbtx.QueryRow(ctx, query, revID, logicalID, version, content, model, tagIDs, schemaID, resolvedVersion, organizationID, createdBy)
	rev, err := scanPromptRevision(row)
	if err != nil {
		return PromptRevision{}, fmt.Errorf("inserting prompt revision: %w", err)
	}
	rev.Name = name
	return rev, nil
}

// GetLatest returns the highest-versioned revision for a logical prompt id.
func (s *PromptStore) GetLatest(ctx context.Context, promptID string) (PromptRevision, error) {
	query := `SELECT ` + promptRevisionColumns + ` FROM prompt_revisions WHERE prompt_id = $1 ORDER BY prompt_version DESC LIMIT 1`
	row := s.dbtx.QueryRow(ctx, query, promptID)
	rev, err := scanPromptRevision(row)
	if err != nil {
		return PromptRevision{}, err
	}
	rev.Name, err = s.ParentName(ctx, promptID)
	return rev, err
}

// GetRevision returns a specific prompt revision by its revision id.
func (s *PromptStore) GetRevision(ctx context.Context, promptRevID string) (PromptRevision, error) {
	query := `SELECT ` + promptRevisionColumns + ` FROM prompt_revisions WHERE prompt_revid = $1`
	row := s.dbtx.QueryRow(ctx, query, promptRevID)
	rev, err := scanPromptRevision(row)
	if err != nil {
		return PromptRevision{}, err
	}
	rev.Name, err = s.ParentName(ctx, rev.PromptID)
	return rev, err
}

// Update applies the generic name-only-change optimization, then resolves
// the schema reference again for the new revision (if any).
func (s *PromptStore) Update(ctx context.Context, promptID, newName, content, model string, tagIDs []string, schemaID *string, schemaVersion *int, createdBy string) (PromptRevision, error) {
	latest, err := s.GetLatest(ctx, promptID)
	if err != nil {
		return PromptRevision{}, fmt.Errorf("loading latest prompt revision: %w", err)
	}

	nameChanged := newName != "" && newName != latest.Name
	fieldsUnchanged := content == latest.Content && model == latest.Model &&
		equalTagIDs(tagIDs, latest.TagIDs) && equalStringPtr(schemaID, latest.SchemaID) && equalIntPtr(schemaVersion, latest.SchemaVersion)

	if nameChanged && fieldsUnchanged {
		if err := s.RenameParent(ctx, promptID, newName); err != nil {
			return PromptRevision{}, fmt.Errorf("renaming prompt: %w", err)
		}
		latest.Name = newName
		return latest, nil
	}

	resolvedVersion, err := s.resolveSchema(ctx, schemaID, schemaVersion)
	if err != nil {
		return PromptRevision{}, err
	}

	version, err := s.NextVersion(ctx, promptID)
	if err != nil {
		return PromptRevision{}, fmt.Errorf("updating prompt: %w", err)
	}
	if nameChanged {
		if err := s.RenameParent(ctx, promptID, newName); err != nil {
			return PromptRevision{}, fmt.Errorf("renaming prompt: %w", err)
		}
	}

	revID := idgen.New()
	query := `INSERT INTO prompt_revisions (prompt_revid, prompt_id, prompt_version, content, model, tag_ids, schema_id, schema_version, organization_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING ` + promptRevisionColumns
	row := s.dbtx.QueryRow(ctx, query, revID, promptID, version, content, model, tagIDs, schemaID, resolvedVersion, latest.OrganizationID, createdBy)
	rev, err := scanPromptRevision(row)
	if err != nil {
		return PromptRevision{}, fmt.Errorf("inserting prompt revision: %w", err)
	}
	if nameChanged {
		rev.Name = newName
	} else {
		rev.Name = latest.Name
	}
	return rev, nil
}

// List returns the latest revision per logical prompt id in an
// organization, optionally filtered by name search, tags, or a document's
// tag set (see ListForDocument).
func (s *PromptStore) List(ctx context.Context, organizationID, nameSearch string, tagIDs []string, limit, offset int) ([]PromptRevision, int, error) {
	where := `p.organization_id = $1`
	args := []any{organizationID}

	if nameSearch != "" {
		args = append(args, "%"+nameSearch+"%")
		where += fmt.Sprintf(` AND p.name ILIKE $%d`, len(args))
	}
	if len(tagIDs) > 0 {
		args = append(args, tagIDs)
		where += fmt.Sprintf(` AND pr.tag_ids && $%d::text[]`, len(args))
	}

	countQuery := fmt.Sprintf(`
		SELECT count(*) FROM (
			SELECT DISTINCT ON (pr.prompt_id) pr.prompt_id
			FROM prompt_revisions pr JOIN prompts p ON p.id = pr.prompt_id
			WHERE %s
			ORDER BY pr.prompt_id, pr.prompt_version DESC
		) latest
	`, where)
	var total int
	if err := s.dbtx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting prompts: %w", err)
	}

	listArgs := append(append([]any{}, args...), limit, offset)
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (pr.prompt_id) %s, p.name
		FROM prompt_revisions pr
		JOIN prompts p ON p.id = pr.prompt_id
		WHERE %s
		ORDER BY pr.prompt_id, pr.prompt_version DESC
		LIMIT $%d OFFSET $%d
	`, prefixColumns("pr", promptRevisionColumns), where, len(args)+1, len(args)+2)

	rows, err := s.dbtx.Query(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing prompts: %w", err)
	}
	defer rows.Close()

	var items []PromptRevision
	for rows.Next() {
		var r PromptRevision
		if err := rows.Scan(&r.PromptRevID, &r.PromptID, &r.PromptVersion, &r.Content, &r.Model, &r.TagIDs,
			&r.SchemaID, &r.SchemaVersion, &r.OrganizationID, &r.CreatedAt, &r.CreatedBy, &r.Name); err != nil {
			return nil, 0, fmt.Errorf("scanning prompt row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating prompt rows: %w", err)
	}
	return items, total, nil
}

// ListForDocument restricts prompts to those whose tag_ids intersect the
// document's tag set; if the document has no tags, only the implicit
// default prompt applies (callers render DefaultPromptRevID themselves,
// since it is not a real row).
func (s *PromptStore) ListForDocument(ctx context.Context, organizationID string, documentTagIDs []string) ([]PromptRevision, error) {
	if len(documentTagIDs) == 0 {
		return nil, nil
	}
	items, _, err := s.List(ctx, organizationID, "", documentTagIDs, 100, 0)
	return items, err
}

// Delete removes a logical prompt id and all its revisions. Prompts are
// not referenced by other entities, so no reference check is required.
func (s *PromptStore) Delete(ctx context.Context, promptID string) error {
	return s.DeleteParent(ctx, promptID)
}

func equalTagIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]int, len(a))
	for _, t := range a {
		seen[t]++
	}
	for _, t := range b {
		seen[t]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
