// Package llmresult persists the versioned output of LLM extraction jobs,
// keyed by (document_id, prompt_revid), following the teacher's
// Store-per-entity convention (pkg/incident/store.go).
package llmresult

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/analytiqhub/docrouter/internal/storage"
)

// DefaultPromptRevID is the literal revision id the implicit default
// prompt's result is stored under.
const DefaultPromptRevID = "default"

// Result is one document's extraction output for one prompt revision.
type Result struct {
	DocumentID       string
	PromptRevID      string
	PromptID         string
	PromptVersion    int
	LLMResult        json.RawMessage
	UpdatedLLMResult json.RawMessage
	IsEdited         bool
	IsVerified       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

const resultColumns = `document_id, prompt_revid, prompt_id, prompt_version,
	llm_result, updated_llm_result, is_edited, is_verified, created_at, updated_at`

func scanResult(row pgx.Row) (Result, error) {
	var r Result
	err := row.Scan(&r.DocumentID, &r.PromptRevID, &r.PromptID, &r.PromptVersion,
		&r.LLMResult, &r.UpdatedLLMResult, &r.IsEdited, &r.IsVerified, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

// Store persists LLM results.
type Store struct {
	dbtx storage.DBTX
}

// NewStore creates a Store.
func NewStore(dbtx storage.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// Upsert writes a result row, replacing any existing row for the same
// (document_id, prompt_revid). updated_llm_result is reset to llm_result
// and is_edited/is_verified are reset to false, matching a fresh
// extraction superseding whatever a client may have edited previously.
func (s *Store) Upsert(ctx context.Context, documentID, promptRevID, promptID string, promptVersion int, llmResult json.RawMessage) (Result, error) {
	query := `
		INSERT INTO llm_results (document_id, prompt_revid, prompt_id, prompt_version,
			llm_result, updated_llm_result, is_edited, is_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5, false, false, now(), now())
		ON CONFLICT (document_id, prompt_revid) DO UPDATE SET
			prompt_id = EXCLUDED.prompt_id,
			prompt_version = EXCLUDED.prompt_version,
			llm_result = EXCLUDED.llm_result,
			updated_llm_result = EXCLUDED.llm_result,
			is_edited = false,
			is_verified = false,
			updated_at = now()
		RETURNING ` + resultColumns
	row := s.dbtx.QueryRow(ctx, query, documentID, promptRevID, promptID, promptVersion, llmResult)
	r, err := scanResult(row)
	if err != nil {
		return Result{}, fmt.Errorf("upserting LLM result: %w", err)
	}
	return r, nil
}

// Get returns the result for an exact (document_id, prompt_revid) pair.
func (s *Store) Get(ctx context.Context, documentID, promptRevID string) (Result, error) {
	query := `SELECT ` + resultColumns + ` FROM llm_results WHERE document_id = $1 AND prompt_revid = $2`
	return scanResult(s.dbtx.QueryRow(ctx, query, documentID, promptRevID))
}

// GetLatestForDocument returns the most recently updated result for a
// document regardless of prompt_revid, for GetResult(fallback=true) when
// the exact revision has no row.
func (s *Store) GetLatestForDocument(ctx context.Context, documentID string) (Result, error) {
	query := `SELECT ` + resultColumns + ` FROM llm_results WHERE document_id = $1 ORDER BY updated_at DESC LIMIT 1`
	return scanResult(s.dbtx.QueryRow(ctx, query, documentID))
}

// ListForDocument returns every result row for a document, for Download.
func (s *Store) ListForDocument(ctx context.Context, documentID string) ([]Result, error) {
	query := `SELECT ` + resultColumns + ` FROM llm_results WHERE document_id = $1 ORDER BY prompt_revid`
	rows, err := s.dbtx.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("listing LLM results: %w", err)
	}
	defer rows.Close()

	var items []Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning LLM result row: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating LLM result rows: %w", err)
	}
	return items, nil
}

// UpdateEdits applies a client-supplied edit: updatedLLMResult replaces the
// stored updated_llm_result, is_edited is set when it differs from the
// original llm_result, and isVerified is recorded as given.
func (s *Store) UpdateEdits(ctx context.Context, documentID, promptRevID string, updatedLLMResult json.RawMessage, isVerified bool) (Result, error) {
	query := `
		UPDATE llm_results SET
			updated_llm_result = $3,
			is_edited = (llm_result != $3),
			is_verified = $4,
			updated_at = now()
		WHERE document_id = $1 AND prompt_revid = $2
		RETURNING ` + resultColumns
	row := s.dbtx.QueryRow(ctx, query, documentID, promptRevID, updatedLLMResult, isVerified)
	r, err := scanResult(row)
	if err != nil {
		return Result{}, fmt.Errorf("updating LLM result: %w", err)
	}
	return r, nil
}

// Delete removes the result for a (document_id, prompt_revid) pair.
func (s *Store) Delete(ctx context.Context, documentID, promptRevID string) error {
	tag, err := s.dbtx.Exec(ctx, `DELETE FROM llm_results WHERE document_id = $1 AND prompt_revid = $2`, documentID, promptRevID)
	if err != nil {
		return fmt.Errorf("deleting LLM result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteForDocument removes every result row for a document, used when a
// document itself is deleted.
func (s *Store) DeleteForDocument(ctx context.Context, documentID string) error {
	_, err := s.dbtx.Exec(ctx, `DELETE FROM llm_results WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("deleting LLM results for document: %w", err)
	}
	return nil
}
