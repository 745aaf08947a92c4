package credit

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/analytiqhub/docrouter/internal/apperr"
	"github.com/analytiqhub/docrouter/internal/httpserver"
	"github.com/analytiqhub/docrouter/internal/org"
)

// Handler provides the organization-scoped HTTP surface over the credit
// ledger: balance and usage reporting. Debits themselves are never an HTTP
// operation — every caller debits through its own domain store
// (pkg/ocrworker, pkg/llmworker, pkg/telemetryingest, pkg/claudelog,
// pkg/otlpingest), never directly against this handler.
type Handler struct {
	logger *slog.Logger
	store  *Store
}

// NewHandler creates a credit Handler over an already-constructed Store,
// the same Store instance every billing call site shares.
func NewHandler(logger *slog.Logger, store *Store) *Handler {
	return &Handler{logger: logger, store: store}
}

// Routes returns a chi.Router with the credit/payments routes mounted,
// for use under an org-scoped prefix (spec.md §6: "GET
// /orgs/{org}/payments/usage/range").
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/balance", h.handleBalance)
	r.Get("/usage/range", h.handleUsageRange)
	return r
}

func (h *Handler) respondErr(w http.ResponseWriter, action string, err error) {
	if ae, ok := apperr.As(err); ok {
		httpserver.RespondAppError(w, ae)
		return
	}
	h.logger.Error(action, "error", err)
	httpserver.RespondAppError(w, apperr.Wrap(apperr.Internal, action, err))
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	orgID, err := org.IDFromContext(r.Context())
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	bal, err := h.store.GetBalance(r.Context(), orgID)
	if err != nil {
		h.respondErr(w, "reading credit balance", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, bal)
}

// handleUsageRange returns SPU usage for the caller's organization between
// the "from" and "to" query parameters (RFC3339), aggregated into
// calendar-day buckets in the IANA timezone named by "tz" (default UTC),
// optionally split per operation via "per_operation=true".
func (h *Handler) handleUsageRange(w http.ResponseWriter, r *http.Request) {
	orgID, err := org.IDFromContext(r.Context())
	if err != nil {
		httpserver.RespondAppError(w, err)
		return
	}

	q := r.URL.Query()
	from, err := parseRangeTime(q.Get("from"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "from must be an RFC3339 timestamp")
		return
	}
	to, err := parseRangeTime(q.Get("to"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", "to must be an RFC3339 timestamp")
		return
	}
	if to.IsZero() {
		to = time.Now()
	}

	tz := q.Get("tz")
	if tz == "" {
		tz = "UTC"
	}

	perOperation := q.Get("per_operation") == "true"

	report, err := h.store.UsageRange(r.Context(), orgID, from, to, tz, perOperation)
	if err != nil {
		h.respondErr(w, "listing credit usage", err)
		return
	}
	httpserver.Respond(w, http.StatusOK, report)
}

func parseRangeTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, v)
}
