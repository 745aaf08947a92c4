package configregistry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/analytiqhub/docrouter/internal/idgen"
	"github.com/analytiqhub/docrouter/internal/storage"
)

// FormResponseFormat holds a form.io schema plus its mapping onto an LLM
// result's extracted fields.
type FormResponseFormat struct {
	JSONFormio        json.RawMessage `json:"json_formio"`
	JSONFormioMapping json.RawMessage `json:"json_formio_mapping"`
}

// FormRevision is one immutable revision of a form.
type FormRevision struct {
	FormRevID      string
	FormID         string
	FormVersion    int
	Name           string
	ResponseFormat FormResponseFormat
	TagIDs         []string
	CreatedAt      time.Time
	CreatedBy      string
}

var formTables = Tables{Parent: "forms", Revision: "form_revisions", ParentIDCol: "form_id", VersionCol: "form_version"}

const formRevisionColumns = `form_revid, form_id, form_version, response_format, tag_ids, created_at, created_by`

// FormStore implements the generic revisioning algorithm for forms.
type FormStore struct {
	Base
	dbtx storage.DBTX
}

// NewFormStore creates a FormStore.
func NewFormStore(dbtx storage.DBTX) *FormStore {
	return &FormStore{Base: NewBase(dbtx, formTables), dbtx: dbtx}
}

func scanFormRevision(row pgx.Row) (FormRevision, error) {
	var r FormRevision
	var format []byte
	if err := row.Scan(&r.FormRevID, &r.FormID, &r.FormVersion, &format, &r.TagIDs, &r.CreatedAt, &r.CreatedBy); err != nil {
		return FormRevision{}, err
	}
	if err := json.Unmarshal(format, &r.ResponseFormat); err != nil {
		return FormRevision{}, fmt.Errorf("unmarshalling form response_format: %w", err)
	}
	return r, nil
}

// Create allocates (or reuses) a logical form id and appends its first or
// next revision.
func (s *FormStore) Create(ctx context.Context, organizationID, name string, responseFormat FormResponseFormat, tagIDs []string, createdBy string) (FormRevision, error) {
	logicalID, _, err := s.ResolveLogicalID(ctx, organizationID, name)
	if err != nil {
		return FormRevision{}, fmt.Errorf("creating form: %w", err)
	}

	version, err := s.NextVersion(ctx, logicalID)
	if err != nil {
		return FormRevision{}, fmt.Errorf("creating form: %w", err)
	}

	formatJSON, err := json.Marshal(responseFormat)
	if err != nil {
		return FormRevision{}, fmt.Errorf("marshalling form response_format: %w", err)
	}

	revID := idgen.New()
	query := `INSERT INTO form_revisions (form_revid, form_id, form_version, response_format, tag_ids, created_by)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + formRevisionColumns
	row := s.dbtx.QueryRow(ctx, query, revID, logicalID, version, formatJSON, tagIDs, createdBy)
	rev, err := scanFormRevision(row)
	if err != nil {
		return FormRevision{}, fmt.Errorf("inserting form revision: %w", err)
	}
	rev.Name = name
	return rev, nil
}

// GetLatest returns the highest-versioned revision for a logical form id.
func (s *FormStore) GetLatest(ctx context.Context, formID string) (FormRevision, error) {
	query := `SELECT ` + formRevisionColumns + ` FROM form_revisions WHERE form_id = $1 ORDER BY form_version DESC LIMIT 1`
	row := s.dbtx.QueryRow(ctx, query, formID)
	rev, err := scanFormRevision(row)
	if err != nil {
		return FormRevision{}, err
	}
	rev.Name, err = s.ParentName(ctx, formID)
	return rev, err
}

// GetRevision returns a specific form revision by its revision id.
func (s *FormStore) GetRevision(ctx context.Context, formRevID string) (FormRevision, error) {
	query := `SELECT ` + formRevisionColumns + ` FROM form_revisions WHERE form_revid = $1`
	row := s.dbtx.QueryRow(ctx, query, formRevID)
	rev, err := scanFormRevision(row)
	if err != nil {
		return FormRevision{}, err
	}
	rev.Name, err = s.ParentName(ctx, rev.FormID)
	return rev, err
}

// Update applies the generic name-only-change optimization.
func (s *FormStore) Update(ctx context.Context, formID, newName string, responseFormat FormResponseFormat, tagIDs []string, createdBy string) (FormRevision, error) {
	latest, err := s.GetLatest(ctx, formID)
	if err != nil {
		return FormRevision{}, fmt.Errorf("loading latest form revision: %w", err)
	}

	newFormatJSON, err := json.Marshal(responseFormat)
	if err != nil {
		return FormRevision{}, fmt.Errorf("marshalling form response_format: %w", err)
	}
	latestFormatJSON, err := json.Marshal(latest.ResponseFormat)
	if err != nil {
		return FormRevision{}, fmt.Errorf("marshalling latest form response_format: %w", err)
	}

	nameChanged := newName != "" && newName != latest.Name
	fieldsUnchanged := bytes.Equal(normalizeJSON(newFormatJSON), normalizeJSON(latestFormatJSON)) && equalTagIDs(tagIDs, latest.TagIDs)

	if nameChanged && fieldsUnchanged {
		if err := s.RenameParent(ctx, formID, newName); err != nil {
			return FormRevision{}, fmt.Errorf("renaming form: %w", err)
		}
		latest.Name = newName
		return latest, nil
	}

	version, err := s.NextVersion(ctx, formID)
	if err != nil {
		return FormRevision{}, fmt.Errorf("updating form: %w", err)
	}
	if nameChanged {
		if err := s.RenameParent(ctx, formID, newName); err != nil {
			return FormRevision{}, fmt.Errorf("renaming form: %w", err)
		}
	}

	revID := idgen.New()
	query := `INSERT INTO form_revisions (form_revid, form_id, form_version, response_format, tag_ids, created_by)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING ` + formRevisionColumns
	row := s.dbtx.QueryRow(ctx, query, revID, formID, version, newFormatJSON, tagIDs, createdBy)
	rev, err := scanFormRevision(row)
	if err != nil {
		return FormRevision{}, fmt.Errorf("inserting form revision: %w", err)
	}
	if nameChanged {
		rev.Name = newName
	} else {
		rev.Name = latest.Name
	}
	return rev, nil
}

// List returns the latest revision per logical form id in an organization.
func (s *FormStore) List(ctx context.Context, organizationID, nameSearch string, tagIDs []string, limit, offset int) ([]FormRevision, int, error) {
	where := `p.organization_id = $1`
	args := []any{organizationID}

	if nameSearch != "" {
		args = append(args, "%"+nameSearch+"%")
		where += fmt.Sprintf(` AND p.name ILIKE $%d`, len(args))
	}
	if len(tagIDs) > 0 {
		args = append(args, tagIDs)
		where += fmt.Sprintf(` AND fr.tag_ids && $%d::text[]`, len(args))
	}

	countQuery := fmt.Sprintf(`
		SELECT count(*) FROM (
			SELECT DISTINCT ON (fr.form_id) fr.form_id
			FROM form_revisions fr JOIN forms p ON p.id = fr.form_id
			WHERE %s
			ORDER BY fr.form_id, fr.form_version DESC
		) latest
	`, where)
	var total int
	if err := s.dbtx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting forms: %w", err)
	}

	listArgs := append(append([]any{}, args...), limit, offset)
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (fr.form_id) %s, p.name
		FROM form_revisions fr
		JOIN forms p ON p.id = fr.form_id
		WHERE %s
		ORDER BY fr.form_id, fr.form_version DESC
		LIMIT $%d OFFSET $%d
	`, prefixColumns("fr", formRevisionColumns), where, len(args)+1, len(args)+2)

	rows, err := s.dbtx.Query(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing forms: %w", err)
	}
	defer rows.Close()

	var items []FormRevision
	for rows.Next() {
		var r FormRevision
		var format []byte
		if err := rows.Scan(&r.FormRevID, &r.FormID, &r.FormVersion, &format, &r.TagIDs, &r.CreatedAt, &r.CreatedBy, &r.Name); err != nil {
			return nil, 0, fmt.Errorf("scanning form row: %w", err)
		}
		if err := json.Unmarshal(format, &r.ResponseFormat); err != nil {
			return nil, 0, fmt.Errorf("unmarshalling form response_format: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating form rows: %w", err)
	}
	return items, total, nil
}

// Delete removes a logical form id and all its revisions. Forms are not
// referenced by other revisioned entities; form_submissions rows that
// reference a deleted form_revid are removed with it by the ON DELETE
// CASCADE on form_submissions.form_revid.
func (s *FormStore) Delete(ctx context.Context, formID string) error {
	return s.DeleteParent(ctx, formID)
}
