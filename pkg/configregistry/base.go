// Package configregistry implements the generic revisioning algorithm
// shared by schemas, prompts, and forms: create-or-reuse a logical id by
// case-insensitive name, append a monotone-versioned revision, collapse
// pure renames into a parent-only mutation, and list/delete against the
// latest revision per logical id.
//
// Go generics over the full entity shape are deliberately avoided here —
// the three entities diverge too much in their revision payloads (schema
// has no tags, prompt and form do; prompt additionally resolves a schema
// reference) for a single parameterized type to stay readable. Instead,
// Base captures the id/version bookkeeping that genuinely is identical
// across all three, and each entity file (schema.go, prompt.go, form.go)
// embeds it and hand-writes its own SQL, following the teacher's
// Store-per-entity convention (pkg/incident/store.go).
package configregistry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/analytiqhub/docrouter/internal/idgen"
	"github.com/analytiqhub/docrouter/internal/storage"
)

// Tables names the parent and revision tables a Base operates on.
type Tables struct {
	Parent      string // e.g. "schemas"
	Revision    string // e.g. "schema_revisions"
	ParentIDCol string // revision-table column referencing the logical id, e.g. "schema_id"
	VersionCol  string // revision-table monotone version column, e.g. "schema_version"
}

// Base holds the id/version bookkeeping shared by every revisioned entity.
type Base struct {
	dbtx   storage.DBTX
	tables Tables
}

// NewBase creates a Base bound to the given tables.
func NewBase(dbtx storage.DBTX, tables Tables) Base {
	return Base{dbtx: dbtx, tables: tables}
}

// ResolveLogicalID finds the existing logical id for name within
// organizationID (case-insensitive), or allocates a new one by inserting a
// placeholder parent row. Returns created=true when a new id was minted.
func (b Base) ResolveLogicalID(ctx context.Context, organizationID, name string) (id string, created bool, err error) {
	q := fmt.Sprintf(`SELECT id FROM %s WHERE organization_id = $1 AND lower(name) = lower($2)`, b.tables.Parent)
	err = b.dbtx.QueryRow(ctx, q, organizationID, name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("resolving logical id: %w", err)
	}

	id = idgen.New()
	insert := fmt.Sprintf(`INSERT INTO %s (id, organization_id, name) VALUES ($1, $2, $3)`, b.tables.Parent)
	if _, err := b.dbtx.Exec(ctx, insert, id, organizationID, name); err != nil {
		return "", false, fmt.Errorf("allocating logical id: %w", err)
	}
	return id, true, nil
}

// ParentName returns the current name of a logical id.
func (b Base) ParentName(ctx context.Context, logicalID string) (string, error) {
	q := fmt.Sprintf(`SELECT name FROM %s WHERE id = $1`, b.tables.Parent)
	var name string
	if err := b.dbtx.QueryRow(ctx, q, logicalID).Scan(&name); err != nil {
		return "", fmt.Errorf("reading parent name: %w", err)
	}
	return name, nil
}

// NextVersion computes the next gap-free version number for logicalID.
func (b Base) NextVersion(ctx context.Context, logicalID string) (int, error) {
	q := fmt.Sprintf(`SELECT COALESCE(MAX(%s), 0) + 1 FROM %s WHERE %s = $1`,
		b.tables.VersionCol, b.tables.Revision, b.tables.ParentIDCol)
	var v int
	if err := b.dbtx.QueryRow(ctx, q, logicalID).Scan(&v); err != nil {
		return 0, fmt.Errorf("computing next version: %w", err)
	}
	return v, nil
}

// RenameParent updates a logical id's display name in place.
func (b Base) RenameParent(ctx context.Context, logicalID, name string) error {
	q := fmt.Sprintf(`UPDATE %s SET name = $2 WHERE id = $1`, b.tables.Parent)
	tag, err := b.dbtx.Exec(ctx, q, logicalID, name)
	if err != nil {
		return fmt.Errorf("renaming %s: %w", b.tables.Parent, err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteParent deletes all revisions for logicalID, then the parent row
// itself. Callers must check referential-integrity constraints before
// calling this: it performs no reference checks of its own, since those
// are entity-specific (schema -> prompt, tag -> doc/prompt/form/telemetry).
func (b Base) DeleteParent(ctx context.Context, logicalID string) error {
	delRevisions := fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, b.tables.Revision, b.tables.ParentIDCol)
	if _, err := b.dbtx.Exec(ctx, delRevisions, logicalID); err != nil {
		return fmt.Errorf("deleting revisions: %w", err)
	}

	delParent := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, b.tables.Parent)
	tag, err := b.dbtx.Exec(ctx, delParent, logicalID)
	if err != nil {
		return fmt.Errorf("deleting parent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// prefixColumns qualifies each column in a comma-separated column list
// with alias, for use in joined queries that shadow a bare column list.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// normalizeJSON re-marshals a json.RawMessage into a canonical form so two
// semantically-equal JSON values compare equal regardless of key order or
// whitespace. Invalid JSON is returned unchanged.
func normalizeJSON(raw json.RawMessage) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}
