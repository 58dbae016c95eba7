package books

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Handler serves the books as read-only JSON on the operations port. The
// ledger mutation API stays in-process; these projections are safe to expose
// because they never write.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler constructs an HTTP handler for the books.
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// MountRoutes attaches book routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/books/general-journal", h.generalJournal)
	r.Get("/books/general-ledger", h.generalLedger)
	r.Get("/books/cash-receipts", h.cashReceipts)
	r.Get("/books/cash-disbursements", h.cashDisbursements)
}

func (h *Handler) generalJournal(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	rows, err := h.service.GeneralJournal(r.Context(), from, to)
	h.respond(w, rows, err)
}

func (h *Handler) generalLedger(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	rows, err := h.service.GeneralLedger(r.Context(), from, to)
	h.respond(w, rows, err)
}

func (h *Handler) cashReceipts(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	rows, err := h.service.CashReceipts(r.Context(), from, to)
	h.respond(w, rows, err)
}

func (h *Handler) cashDisbursements(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	rows, err := h.service.CashDisbursements(r.Context(), from, to)
	h.respond(w, rows, err)
}

// dateRange parses optional from/to query params in 2006-01-02 form.
func (h *Handler) dateRange(w http.ResponseWriter, r *http.Request) (*time.Time, *time.Time, bool) {
	parse := func(name string) (*time.Time, bool) {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			return nil, true
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			http.Error(w, "invalid "+name+" date", http.StatusBadRequest)
			return nil, false
		}
		return &t, true
	}
	from, ok := parse("from")
	if !ok {
		return nil, nil, false
	}
	to, ok := parse("to")
	if !ok {
		return nil, nil, false
	}
	return from, to, true
}

func (h *Handler) respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		h.logger.Error("books query", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("books encode", slog.Any("error", err))
	}
}
