package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jimf8th/my-skool-club-sub000/pkg/httputil"
	"github.com/jimf8th/my-skool-club-sub000/pkg/invoices"
	"github.com/jimf8th/my-skool-club-sub000/pkg/middleware"
)

// InvoiceHandlers handles invoice HTTP requests
type InvoiceHandlers struct {
	svc    *invoices.Service
	shared *approvableRoutes[*invoices.Invoice]
}

// NewInvoiceHandlers creates a new InvoiceHandlers
func NewInvoiceHandlers(svc *invoices.Service) *InvoiceHandlers {
	return &InvoiceHandlers{
		svc:    svc,
		shared: &approvableRoutes[*invoices.Invoice]{machine: svc.Machine},
	}
}

// RegisterRoutes registers invoice routes
func (h *InvoiceHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/clubs/{id}/invoices", h.create).Methods("POST")
	h.shared.register(router, "/invoices")
	router.HandleFunc("/invoices/{id}", h.update).Methods("PATCH")

	// Lifecycle steps
	router.HandleFunc("/invoices/{id}/submit", h.step(h.svc.Submit)).Methods("POST")
	router.HandleFunc("/invoices/{id}/send", h.step(h.svc.MarkSent)).Methods("POST")
	router.HandleFunc("/invoices/{id}/pay", h.step(h.svc.MarkPaid)).Methods("POST")
	router.HandleFunc("/invoices/{id}/cancel", h.step(h.svc.Cancel)).Methods("POST")
}

func (h *InvoiceHandlers) create(w http.ResponseWriter, r *http.Request) {
	clubID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req CreateInvoiceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv := &invoices.Invoice{Items: req.Items, Notes: req.Notes, Draft: req.Draft}
	inv.DueDate = req.DueDate.Ptr()

	created, err := h.svc.Create(r.Context(), middleware.Caller(r), clubID, inv)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (h *InvoiceHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req UpdateInvoiceRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv, err := h.svc.Update(r.Context(), middleware.Caller(r), id, invoices.Update{
		Items:        req.Items,
		Notes:        req.Notes,
		DueDate:      req.DueDate.Ptr(),
		ClearDueDate: req.ClearDueDate,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

func (h *InvoiceHandlers) step(op stepFunc[*invoices.Invoice]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.shared.apply(w, r, op)
	}
}
