package statements

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quillbooks/quillbooks/internal/platform/httpx"
)

// Handler wires HTTP endpoints for aging and customer statements.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/aging", h.aging)
	r.Get("/customers/{customerID}", h.customerStatement)
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	companyID, ok := queryCompanyID(w, r)
	if !ok {
		return
	}
	var asOf time.Time
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = t
	}

	report, err := h.service.Aging(r.Context(), companyID, asOf)
	if err != nil {
		h.logger.Error("aging report", slog.Any("error", err), slog.Int64("company_id", companyID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) customerStatement(w http.ResponseWriter, r *http.Request) {
	companyID, ok := queryCompanyID(w, r)
	if !ok {
		return
	}
	customerID, err := strconv.ParseInt(chi.URLParam(r, "customerID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid customer id")
		return
	}
	var from, to time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		from, _ = time.Parse("2006-01-02", v)
	}
	if v := r.URL.Query().Get("to"); v != "" {
		to, _ = time.Parse("2006-01-02", v)
	}

	stmt, err := h.service.CustomerStatement(r.Context(), companyID, customerID, from, to)
	if err != nil {
		h.logger.Error("customer statement", slog.Any("error", err), slog.Int64("customer_id", customerID))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stmt)
}

func queryCompanyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	companyID, err := strconv.ParseInt(r.URL.Query().Get("company_id"), 10, 64)
	if err != nil || companyID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "company_id is required")
		return 0, false
	}
	return companyID, true
}
