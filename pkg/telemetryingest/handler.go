package telemetryingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/internal/auth"
	"github.com/analytiqhub/docrouter/internal/httpserver"
	"github.com/analytiqhub/docrouter/internal/org"
	"github.com/analytiqhub/docrouter/internal/storage"
	"github.com/analytiqhub/docrouter/pkg/credit"
)

// severityLevels is the closed set a log record's severity field is
// validated against — the textual form OTLP severity_number is mapped
// into, by pkg/otlpingest, before reaching this store.
var severityLevels = map[string]bool{
	"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true, "ERROR": true, "FATAL": true,
}

// SeverityFromOTLP maps an OTLP severity_number to DocRouter's textual
// severity scale, shared with pkg/otlpingest.
func SeverityFromOTLP(n int32) string {
	switch {
	case n >= 1 && n <= 4:
		return "TRACE"
	case n >= 5 && n <= 8:
		return "DEBUG"
	case n >= 9 && n <= 12:
		return "INFO"
	case n >= 13 && n <= 16:
		return "WARN"
	case n >= 17 && n <= 20:
		return "ERROR"
	case n >= 21 && n <= 24:
		return "FATAL"
	default:
		return "INFO"
	}
}

// Handler provides HTTP handlers for telemetry ingest and listing.
type Handler struct {
	logger  *slog.Logger
	credit  *credit.Store
	traces  *Store
	metrics *Store
	logs    *Store
}

// NewHandler creates a telemetryingest Handler.
func NewHandler(logger *slog.Logger, dbtx storage.DBTX, creditStore *credit.Store) *Handler {
	return &Handler{
		logger:  logger,
		credit:  creditStore,
		traces:  NewTraceStore(dbtx),
		metrics: NewMetricStore(dbtx),
		logs:    NewLogStore(dbtx),
	}
}

// Routes returns a chi.Router with all telemetry routes mounted, for use
// under an org-scoped prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/traces", h.handleIngest(h.traces))
	r.Get("/traces", h.handleList(h.traces))
	r.Post("/metrics", h.handleIngest(h.metrics))
	r.Get("/metrics", h.handleList(h.metrics))
	r.Post("/logs", h.handleIngest(h.logs))
	r.Get("/logs", h.handleList(h.logs))
	return r
}

func orgID(r *http.Request) (string, error) {
	return org.IDFromContext(r.Context())
}

func callerID(r *http.Request) string {
	if id := auth.FromContext(r.Context()); id != nil {
		return id.UserID
	}
	return ""
}

func respondStoreErr(w http.ResponseWriter, logger *slog.Logger, action string, err error) {
	if ae, ok := apperr.As(err); ok {
		httpserver.RespondAppError(w, ae)
		return
	}
	logger.Error(action, "error", err)
	httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, action, err))
}

type ingestItem struct {
	Payload  json.RawMessage   `json:"payload" validate:"required"`
	TagIDs   []string          `json:"tag_ids"`
	Metadata map[string]string `json:"metadata"`
	Name     string            `json:"name"`
	Severity string            `json:"severity"`
}

type recordView struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	Payload        json.RawMessage   `json:"payload"`
	UploadDate     string            `json:"upload_date"`
	UploadedBy     string            `json:"uploaded_by"`
	TagIDs         []string          `json:"tag_ids"`
	Metadata       map[string]string `json:"metadata"`
	Name           string            `json:"name,omitempty"`
	Severity       string            `json:"severity,omitempty"`
}

func recordResponse(r Record) recordView {
	return recordView{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		Payload:        r.Payload,
		UploadDate:     r.UploadDate.Format(time.RFC3339),
		UploadedBy:     r.UploadedBy,
		TagIDs:         r.TagIDs,
		Metadata:       r.Metadata,
		Name:           r.Name,
		Severity:       r.Severity,
	}
}

// handleIngest returns a handler that accepts a bare JSON array of
// records for the given store, charges 1 SPU per record, and persists
// one row per item. Billing happens before persistence: a record that
// fails to persist after a successful debit stays billed.
func (h *Handler) handleIngest(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID_, err := orgID(r)
		if err != nil {
			httpserver.RespondAppError(w, err)
			return
		}

		var items []ingestItem
		if err := httpserver.Decode(r, &items); err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		if len(items) == 0 {
			httpserver.RespondValidationError(w, []httpserver.ValidationError{{Field: "", Message: "at least one record is required"}})
			return
		}

		var fieldErrs []httpserver.ValidationError
		for i, item := range items {
			fieldErrs = append(fieldErrs, httpserver.Validate(&item)...)
			if store.kind.extraColumn == "severity" && item.Severity != "" && !severityLevels[item.Severity] {
				fieldErrs = append(fieldErrs, httpserver.ValidationError{
					Field:   fmt.Sprintf("%d.severity", i),
					Message: "must be one of TRACE, DEBUG, INFO, WARN, ERROR, FATAL",
				})
			}
		}
		if len(fieldErrs) > 0 {
			httpserver.RespondValidationError(w, fieldErrs)
			return
		}

		if _, err := h.credit.Debit(r.Context(), orgID_, store.Operation(), "telemetry-ingest", credit.FractionalCost(len(items), 1.0)); err != nil {
			respondStoreErr(w, h.logger, "debiting telemetry ingest SPU", err)
			return
		}

		uploader := callerID(r)
		results := make([]recordView, 0, len(items))
		for _, item := range items {
			rec, err := store.Insert(r.Context(), InsertParams{
				OrganizationID: orgID_,
				Payload:        item.Payload,
				UploadedBy:     uploader,
				TagIDs:         item.TagIDs,
				Metadata:       item.Metadata,
				Name:           item.Name,
				Severity:       item.Severity,
			})
			if err != nil {
				respondStoreErr(w, h.logger, "persisting telemetry record", err)
				return
			}
			results = append(results, recordResponse(rec))
		}

		httpserver.Respond(w, http.StatusCreated, map[string]any{"items": results})
	}
}

// handleList returns a handler that lists records for the given store,
// cursor-paginated and filtered by tag/time-range plus the kind-specific
// severity/name filter.
func (h *Handler) handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID_, err := orgID(r)
		if err != nil {
			httpserver.RespondAppError(w, err)
			return
		}

		limit := httpserver.DefaultPageSize
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, convErr := parsePositiveInt(v); convErr == nil {
				limit = n
			} else {
				httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
				return
			}
		}
		if limit > httpserver.MaxPageSize {
			limit = httpserver.MaxPageSize
		}

		var after *CursorKey
		if v := r.URL.Query().Get("after"); v != "" {
			c, err := decodeCursor(v)
			if err != nil {
				httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "invalid cursor")
				return
			}
			after = &c
		}

		f, err := parseListFilter(r)
		if err != nil {
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}

		items, err := store.List(r.Context(), orgID_, f, after, limit+1)
		if err != nil {
			respondStoreErr(w, h.logger, "listing telemetry records", err)
			return
		}

		hasMore := len(items) > limit
		if hasMore {
			items = items[:limit]
		}
		views := make([]recordView, 0, len(items))
		for _, rec := range items {
			views = append(views, recordResponse(rec))
		}

		page := map[string]any{"items": views, "has_more": hasMore}
		if hasMore && len(items) > 0 {
			last := items[len(items)-1]
			page["next_cursor"] = encodeCursor(CursorKey{UploadDate: last.UploadDate, ID: last.ID})
		}
		httpserver.Respond(w, http.StatusOK, page)
	}
}

func parseListFilter(r *http.Request) (ListFilter, error) {
	f := ListFilter{
		TagID:     r.URL.Query().Get("tag_id"),
		Severity:  r.URL.Query().Get("severity"),
		NameQuery: r.URL.Query().Get("name"),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("from must be an ISO-8601 timestamp")
		}
		t = t.UTC()
		f.From = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, errors.New("to must be an ISO-8601 timestamp")
		}
		t = t.UTC()
		f.To = &t
	}
	return f, nil
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("must be positive")
	}
	return n, nil
}
