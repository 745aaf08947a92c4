package claudelog

import (
	"encoding/json"
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

// Handler provides HTTP handlers for Claude log/hook ingest and listing.
type Handler struct {
	logger *slog.Logger
	credit *credit.Store
	logs   *Store
	hooks  *Store
}

// NewHandler creates a claudelog Handler.
func NewHandler(logger *slog.Logger, dbtx storage.DBTX, creditStore *credit.Store) *Handler {
	return &Handler{
		logger: logger,
		credit: creditStore,
		logs:   NewLogStore(dbtx),
		hooks:  NewHookStore(dbtx),
	}
}

// AccountRoutes returns a chi.Router with the ingest endpoints mounted —
// "POST /log" and "POST /hook" — for use under the account-scoped
// /v0 prefix, unlike every other domain handler's Routes(). Per
// spec.md §6, these two are the only Claude endpoints not nested under
// /orgs/{org}: a Claude Code CLI session authenticates once with an
// organization-scoped access token and streams logs without ever naming
// the organization in the URL, so the organization here comes from the
// token's own scope (auth.Identity.OrganizationID) rather than a path
// segment.
func (h *Handler) AccountRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/log", h.handleIngest(h.logs))
	r.Post("/hook", h.handleIngest(h.hooks))
	return r
}

// Routes returns a chi.Router with the listing endpoints mounted — "GET
// /logs" and "GET /hooks" — for use under an org-scoped prefix
// (spec.md §6: "GET /orgs/{org}/claude/{logs|hooks}").
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/logs", h.handleList(h.logs))
	r.Get("/hooks", h.handleList(h.hooks))
	return r
}

func orgID(r *http.Request) (string, error) {
	return org.IDFromContext(r.Context())
}

// ingestOrgID resolves the organization an ingest request is billed and
// stored against from the caller's access-token scope, since AccountRoutes
// endpoints carry no {org_id} path segment for org.Middleware to resolve.
func ingestOrgID(r *http.Request) (string, error) {
	identity := auth.FromContext(r.Context())
	if identity == nil || identity.OrganizationID == "" {
		return "", apperr.New(apperr.Authorization, "claude log ingest requires an organization-scoped access token")
	}
	return identity.OrganizationID, nil
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
	StreamID string          `json:"stream_id" validate:"required"`
	Seq      int64           `json:"seq" validate:"gte=0"`
	Payload  json.RawMessage `json:"payload" validate:"required"`
	Event    string          `json:"event"`
}

type recordView struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	StreamID       string          `json:"stream_id"`
	Seq            int64           `json:"seq"`
	Payload        json.RawMessage `json:"payload"`
	Event          string          `json:"event,omitempty"`
	UploadedBy     string          `json:"uploaded_by"`
	CreatedAt      string          `json:"created_at"`
}

func recordResponse(r Record) recordView {
	return recordView{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		StreamID:       r.StreamID,
		Seq:            r.Seq,
		Payload:        r.Payload,
		Event:          r.Event,
		UploadedBy:     r.UploadedBy,
		CreatedAt:      r.CreatedAt.Format(time.RFC3339),
	}
}

// handleIngest returns a handler that accepts a bare JSON array of
// records sharing one stream, dedups the batch against what is already
// stored for that stream with a single monotone scan (Dedup), bills only
// the records that are actually new, and inserts them in seq order.
//
// A batch may span more than one stream_id only by accident (a client
// bug); this endpoint requires every item in a single request to share
// the same stream_id, since the monotone high-water mark is per stream
// and mixing streams in one batch would need a MaxSeq lookup per item
// instead of one.
func (h *Handler) handleIngest(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID_, err := ingestOrgID(r)
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
		streamID := items[0].StreamID
		for i, item := range items {
			fieldErrs = append(fieldErrs, httpserver.Validate(&item)...)
			if item.StreamID != streamID {
				fieldErrs = append(fieldErrs, httpserver.ValidationError{
					Field:   fmt.Sprintf("%d.stream_id", i),
					Message: "all records in one request must share the same stream_id",
				})
			}
		}
		if len(fieldErrs) > 0 {
			httpserver.RespondValidationError(w, fieldErrs)
			return
		}

		maxSeq, err := store.MaxSeq(r.Context(), orgID_, streamID)
		if err != nil {
			respondStoreErr(w, h.logger, "finding stream high-water mark", err)
			return
		}

		toDedup := make([]Item, len(items))
		for i, item := range items {
			toDedup[i] = Item{Seq: item.Seq, Payload: item.Payload, Event: item.Event}
		}
		fresh := Dedup(toDedup, maxSeq)

		if len(fresh) == 0 {
			httpserver.Respond(w, http.StatusOK, map[string]any{"items": []recordView{}})
			return
		}

		if _, err := h.credit.Debit(r.Context(), orgID_, store.Operation(), "claude-ingest", store.Cost(len(fresh))); err != nil {
			respondStoreErr(w, h.logger, "debiting claude ingest SPU", err)
			return
		}

		uploader := callerID(r)
		results := make([]recordView, 0, len(fresh))
		for _, item := range fresh {
			rec, err := store.Insert(r.Context(), InsertParams{
				OrganizationID: orgID_,
				StreamID:       streamID,
				Seq:            item.Seq,
				Payload:        item.Payload,
				Event:          item.Event,
				UploadedBy:     uploader,
			})
			if err != nil {
				respondStoreErr(w, h.logger, "persisting claude record", err)
				return
			}
			results = append(results, recordResponse(rec))
		}

		httpserver.Respond(w, http.StatusCreated, map[string]any{"items": results})
	}
}

// handleList returns a handler that lists a stream's records in seq
// order, starting after an optional "after_seq" query parameter.
func (h *Handler) handleList(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID_, err := orgID(r)
		if err != nil {
			httpserver.RespondAppError(w, err)
			return
		}

		streamID := r.URL.Query().Get("stream_id")
		if streamID == "" {
			httpserver.RespondValidationError(w, []httpserver.ValidationError{{Field: "stream_id", Message: "is required"}})
			return
		}

		afterSeq := int64(-1)
		if v := r.URL.Query().Get("after_seq"); v != "" {
			n, convErr := strconv.ParseInt(v, 10, 64)
			if convErr != nil {
				httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "after_seq must be an integer")
				return
			}
			afterSeq = n
		}

		limit := httpserver.DefaultPageSize
		if v := r.URL.Query().Get("limit"); v != "" {
			n, convErr := strconv.Atoi(v)
			if convErr != nil || n < 1 {
				httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
				return
			}
			limit = n
		}
		if limit > httpserver.MaxPageSize {
			limit = httpserver.MaxPageSize
		}

		f := ListFilter{StreamID: streamID, AfterSeq: afterSeq, Event: r.URL.Query().Get("event")}
		records, err := store.List(r.Context(), orgID_, f, limit)
		if err != nil {
			respondStoreErr(w, h.logger, "listing claude records", err)
			return
		}

		views := make([]recordView, 0, len(records))
		for _, rec := range records {
			views = append(views, recordResponse(rec))
		}

		page := map[string]any{"items": views, "has_more": len(records) == limit}
		if len(records) > 0 {
			page["last_seq"] = records[len(records)-1].Seq
		}
		httpserver.Respond(w, http.StatusOK, page)
	}
}
