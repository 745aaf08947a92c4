package document

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/analytiqhub/docrouter/internal/storage"
)

// Store provides database operations for documents.
type Store struct {
	dbtx storage.DBTX
}

// NewStore creates a document Store.
func NewStore(dbtx storage.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const docColumns = `id, organization_id, user_file_name, blob_name, upload_date, uploaded_by,
	state, tag_ids, metadata, n_pages, ocr_date`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	var metadataJSON []byte
	err := row.Scan(&d.ID, &d.OrganizationID, &d.UserFileName, &d.BlobName, &d.UploadDate, &d.UploadedBy,
		&d.State, &d.TagIDs, &metadataJSON, &d.NPages, &d.OCRDate)
	if err != nil {
		return Document{}, err
	}
	if err := unmarshalMetadata(metadataJSON, &d.Metadata); err != nil {
		return Document{}, err
	}
	return d, nil
}

func unmarshalMetadata(raw []byte, out *map[string]string) error {
	if len(raw) == 0 {
		*out = map[string]string{}
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshalling document metadata: %w", err)
	}
	if *out == nil {
		*out = map[string]string{}
	}
	return nil
}

// CreateParams holds parameters for creating a document. ID is generated
// by the caller (rather than internally) so the blob name, which is
// derived from the document id, can be computed before the row exists.
type CreateParams struct {
	ID             string
	OrganizationID string
	UserFileName   string
	BlobName       string
	UploadedBy     string
	TagIDs         []string
	Metadata       map[string]string
}

// Create inserts a new document in the uploaded state.
func (s *Store) Create(ctx context.Context, p CreateParams) (Document, error) {
	metadataJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return Document{}, fmt.Errorf("marshalling document metadata: %w", err)
	}

	query := `INSERT INTO docs (id, organization_id, user_file_name, blob_name, upload_date, uploaded_by, state, tag_ids, metadata, n_pages, ocr_date)
		VALUES ($1, $2, $3, $4, now(), $5, $6, $7, $8, 0, NULL)
		RETURNING ` + docColumns
	row := s.dbtx.QueryRow(ctx, query, p.ID, p.OrganizationID, p.UserFileName, p.BlobName, p.UploadedBy, StateUploaded, p.TagIDs, metadataJSON)
	return scanDocument(row)
}

// SetBlobName records the blob name for a document once it is known.
func (s *Store) SetBlobName(ctx context.Context, id, blobName string) error {
	tag, err := s.dbtx.Exec(ctx, `UPDATE docs SET blob_name = $2 WHERE id = $1`, id, blobName)
	if err != nil {
		return fmt.Errorf("setting document blob name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Get returns a document by id, scoped to organizationID.
func (s *Store) Get(ctx context.Context, organizationID, id string) (Document, error) {
	query := `SELECT ` + docColumns + ` FROM docs WHERE id = $1 AND organization_id = $2`
	return scanDocument(s.dbtx.QueryRow(ctx, query, id, organizationID))
}

// GetByID returns a document by id alone. Document ids are globally unique,
// so OCR/LLM workers, which only have a document id on their job payload
// and no organization context, use this instead of Get.
func (s *Store) GetByID(ctx context.Context, id string) (Document, error) {
	query := `SELECT ` + docColumns + ` FROM docs WHERE id = $1`
	return scanDocument(s.dbtx.QueryRow(ctx, query, id))
}

// UpdateParams holds the editable fields of a document. A nil field is
// left unchanged; TagIDs, if non-nil, replaces the existing set entirely
// (it is not merged).
type UpdateParams struct {
	UserFileName *string
	TagIDs       []string
	Metadata     map[string]string
}

// Update applies editable field changes to a document.
func (s *Store) Update(ctx context.Context, organizationID, id string, p UpdateParams) error {
	sets := []string{}
	args := []any{id, organizationID}
	argN := 3

	if p.UserFileName != nil {
		sets = append(sets, fmt.Sprintf("user_file_name = $%d", argN))
		args = append(args, *p.UserFileName)
		argN++
	}
	if p.TagIDs != nil {
		sets = append(sets, fmt.Sprintf("tag_ids = $%d", argN))
		args = append(args, p.TagIDs)
		argN++
	}
	if p.Metadata != nil {
		metadataJSON, err := json.Marshal(p.Metadata)
		if err != nil {
			return fmt.Errorf("marshalling document metadata: %w", err)
		}
		sets = append(sets, fmt.Sprintf("metadata = $%d", argN))
		args = append(args, metadataJSON)
		argN++
	}
	if len(sets) == 0 {
		return nil
	}

	query := fmt.Sprintf(`UPDATE docs SET %s WHERE id = $1 AND organization_id = $2`, strings.Join(sets, ", "))
	tag, err := s.dbtx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetState transitions a document's pipeline state.
func (s *Store) SetState(ctx context.Context, id string, state State) error {
	tag, err := s.dbtx.Exec(ctx, `UPDATE docs SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("setting document state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetOCRMetadata records the page count and OCR completion timestamp.
func (s *Store) SetOCRMetadata(ctx context.Context, id string, nPages int, ocrDate time.Time) error {
	tag, err := s.dbtx.Exec(ctx, `UPDATE docs SET n_pages = $2, ocr_date = $3 WHERE id = $1`, id, nPages, ocrDate)
	if err != nil {
		return fmt.Errorf("setting OCR metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a document row. Callers delete the blob and OCR artifacts
// beforehand; LLM results and form submissions that reference the document
// are removed by their ON DELETE CASCADE foreign keys.
func (s *Store) Delete(ctx context.Context, organizationID, id string) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM docs WHERE id = $1 AND organization_id = $2`, id, organizationID)
	if err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListFilters holds the optional filter parameters for listing documents.
type ListFilters struct {
	TagIDs         []string
	NameSearch     string
	MetadataSearch map[string]string
}

// List returns documents for an organization matching filters, sorted by
// upload date descending, with offset pagination.
func (s *Store) List(ctx context.Context, organizationID string, filters ListFilters, limit, offset int) ([]Document, int, error) {
	where, args := buildFilterClauses(organizationID, filters)

	countQuery := fmt.Sprintf(`SELECT count(*) FROM docs WHERE %s`, strings.Join(where, " AND "))
	var total int
	if err := s.dbtx.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting documents: %w", err)
	}

	argN := len(args) + 1
	query := fmt.Sprintf(`SELECT %s FROM docs WHERE %s ORDER BY upload_date DESC LIMIT $%d OFFSET $%d`,
		docColumns, strings.Join(where, " AND "), argN, argN+1)
	listArgs := append(append([]any{}, args...), limit, offset)

	rows, err := s.dbtx.Query(ctx, query, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing documents: %w", err)
	}
	defer rows.Close()

	var items []Document
	for rows.Next() {
		var d Document
		var metadataJSON []byte
		if err := rows.Scan(&d.ID, &d.OrganizationID, &d.UserFileName, &d.BlobName, &d.UploadDate, &d.UploadedBy,
			&d.State, &d.TagIDs, &metadataJSON, &d.NPages, &d.OCRDate); err != nil {
			return nil, 0, fmt.Errorf("scanning document row: %w", err)
		}
		if err := unmarshalMetadata(metadataJSON, &d.Metadata); err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating document rows: %w", err)
	}
	return items, total, nil
}

func buildFilterClauses(organizationID string, filters ListFilters) ([]string, []any) {
	where := []string{"organization_id = $1"}
	args := []any{organizationID}
	argN := 2

	if filters.NameSearch != "" {
		where = append(where, fmt.Sprintf("user_file_name ILIKE $%d", argN))
		args = append(args, "%"+filters.NameSearch+"%")
		argN++
	}
	if len(filters.TagIDs) > 0 {
		where = append(where, fmt.Sprintf("tag_ids && $%d::text[]", argN))
		args = append(args, filters.TagIDs)
		argN++
	}
	for k, v := range filters.MetadataSearch {
		where = append(where, fmt.Sprintf("metadata->>$%d = $%d", argN, argN+1))
		args = append(args, k, v)
		argN += 2
	}

	return where, args
}
