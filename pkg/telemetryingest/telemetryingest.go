// Package telemetryingest implements the HTTP transport of the telemetry
// plane: trace, metric, and log records accepted per-organization, each
// persisted verbatim alongside a small indexed envelope (tags, metadata,
// upload time) and billed one SPU per record (fractional for call sites
// that need it, e.g. Claude hook ingest reusing this same store shape).
// pkg/otlpingest implements the second transport (OTLP/gRPC) over the
// same three Store kinds.
package telemetryingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/analytiqhub/docrouter/internal/idgen"
	"github.com/analytiqhub/docrouter/internal/storage"
	"github.com/analytiqhub/docrouter/pkg/credit"
)

// Record is one telemetry row. Name is populated for metrics only,
// Severity for logs only; both are the empty string for traces.
type Record struct {
	ID             string
	OrganizationID string
	Payload        json.RawMessage
	UploadDate     time.Time
	UploadedBy     string
	TagIDs         []string
	Metadata       map[string]string
	Name           string
	Severity       string
}

// kind carries the one thing that differs between traces, metrics, and
// logs: the backing table, the optional extra indexed column, and the
// credit operation a record of this kind is billed under. A single Store
// type parameterized on kind replaces three near-identical hand-written
// stores, the same "small struct embedding" generalization
// pkg/configregistry.Base uses for revisioned entities.
type kind struct {
	table       string
	extraColumn string // "", "name", or "severity"
	operation   credit.Operation
}

var (
	kindTrace  = kind{table: "telemetry_traces", operation: credit.OperationTelemetryTrace}
	kindMetric = kind{table: "telemetry_metrics", extraColumn: "name", operation: credit.OperationTelemetryMetric}
	kindLog    = kind{table: "telemetry_logs", extraColumn: "severity", operation: credit.OperationTelemetryLog}
)

// Store persists one kind of telemetry record.
type Store struct {
	dbtx storage.DBTX
	kind kind
}

// NewTraceStore creates a Store backed by telemetry_traces.
func NewTraceStore(dbtx storage.DBTX) *Store { return &Store{dbtx: dbtx, kind: kindTrace} }

// NewMetricStore creates a Store backed by telemetry_metrics.
func NewMetricStore(dbtx storage.DBTX) *Store { return &Store{dbtx: dbtx, kind: kindMetric} }

// NewLogStore creates a Store backed by telemetry_logs.
func NewLogStore(dbtx storage.DBTX) *Store { return &Store{dbtx: dbtx, kind: kindLog} }

// Operation returns the credit.Operation a record of this store's kind is
// billed under.
func (s *Store) Operation() credit.Operation { return s.kind.operation }

func (s *Store) columns() string {
	cols := "id, organization_id, payload, upload_date, uploaded_by, tag_ids, metadata"
	if s.kind.extraColumn != "" {
		cols += ", " + s.kind.extraColumn
	}
	return cols
}

func (s *Store) scan(row interface{ Scan(...any) error }) (Record, error) {
	var rec Record
	var metadataJSON []byte
	dest := []any{&rec.ID, &rec.OrganizationID, &rec.Payload, &rec.UploadDate, &rec.UploadedBy, &rec.TagIDs, &metadataJSON}
	switch s.kind.extraColumn {
	case "name":
		dest = append(dest, &rec.Name)
	case "severity":
		dest = append(dest, &rec.Severity)
	}
	if err := row.Scan(dest...); err != nil {
		return Record{}, err
	}
	if err := unmarshalMetadata(metadataJSON, &rec.Metadata); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func unmarshalMetadata(raw []byte, out *map[string]string) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshalling telemetry metadata: %w", err)
	}
	return nil
}

// InsertParams is one record to ingest. Name/Severity are used only by the
// store kind that indexes them and ignored otherwise.
type InsertParams struct {
	OrganizationID string
	Payload        json.RawMessage
	UploadedBy     string
	TagIDs         []string
	Metadata       map[string]string
	Name           string
	Severity       string
}

// Insert writes one record, generating its id and setting upload_date to
// the current time server-side, the same convention document.Store.Create
// uses.
func (s *Store) Insert(ctx context.Context, p InsertParams) (Record, error) {
	metadataJSON, err := json.Marshal(p.Metadata)
	if err != nil {
		return Record{}, fmt.Errorf("marshalling telemetry metadata: %w", err)
	}

	id := idgen.New()
	args := []any{id, p.OrganizationID, []byte(p.Payload), p.UploadedBy, p.TagIDs, metadataJSON}
	extraCol, extraPlaceholder := "", ""
	switch s.kind.extraColumn {
	case "name":
		extraCol, extraPlaceholder = ", name", fmt.Sprintf(", $%d", len(args)+1)
		args = append(args, p.Name)
	case "severity":
		extraCol, extraPlaceholder = ", severity", fmt.Sprintf(", $%d", len(args)+1)
		args = append(args, p.Severity)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, organization_id, payload, upload_date, uploaded_by, tag_ids, metadata%s)
		VALUES ($1, $2, $3, now(), $4, $5, $6%s)
		RETURNING %s
	`, s.kind.table, extraCol, extraPlaceholder, s.columns())

	return s.scan(s.dbtx.QueryRow(ctx, query, args...))
}

// ListFilter narrows a telemetry list by tag, IANA-UTC timestamp range,
// and (depending on kind) severity or name substring.
type ListFilter struct {
	TagID     string
	From, To  *time.Time
	Severity  string // logs only
	NameQuery string // metrics only
}

func (s *Store) buildWhere(organizationID string, f ListFilter) ([]string, []any) {
	where := []string{"organization_id = $1"}
	args := []any{organizationID}
	argN := 2

	if f.TagID != "" {
		where = append(where, fmt.Sprintf("$%d = ANY(tag_ids)", argN))
		args = append(args, f.TagID)
		argN++
	}
	if f.From != nil {
		where = append(where, fmt.Sprintf("upload_date >= $%d", argN))
		args = append(args, f.From.UTC())
		argN++
	}
	if f.To != nil {
		where = append(where, fmt.Sprintf("upload_date <= $%d", argN))
		args = append(args, f.To.UTC())
		argN++
	}
	if s.kind.extraColumn == "severity" && f.Severity != "" {
		where = append(where, fmt.Sprintf("severity = $%d", argN))
		args = append(args, f.Severity)
		argN++
	}
	if s.kind.extraColumn == "name" && f.NameQuery != "" {
		where = append(where, fmt.Sprintf("name ILIKE $%d", argN))
		args = append(args, "%"+f.NameQuery+"%")
		argN++
	}

	return where, args
}

// List returns up to limit+1 records matching f, ordered newest first,
// starting strictly after the given cursor (keyset pagination on
// (upload_date, id) to keep ordering total even when timestamps collide).
// Callers pass limit+1 so they can detect whether another page exists
// without a separate count query, per httpserver.NewCursorPage's contract.
func (s *Store) List(ctx context.Context, organizationID string, f ListFilter, after *CursorKey, limit int) ([]Record, error) {
	where, args := s.buildWhere(organizationID, f)
	argN := len(args) + 1

	if after != nil {
		where = append(where, fmt.Sprintf("(upload_date, id) < ($%d, $%d)", argN, argN+1))
		args = append(args, after.UploadDate.UTC(), after.ID)
		argN += 2
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY upload_date DESC, id DESC LIMIT $%d`,
		s.columns(), s.kind.table, strings.Join(where, " AND "), argN)
	args = append(args, limit)

	rows, err := s.dbtx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.kind.table, err)
	}
	defer rows.Close()

	var items []Record
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", s.kind.table, err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", s.kind.table, err)
	}
	return items, nil
}

// CursorKey is the keyset position List paginates on.
type CursorKey struct {
	UploadDate time.Time
	ID         string
}
