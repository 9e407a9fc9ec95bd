package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jimf8th/my-skool-club-sub000/pkg/checkouts"
	"github.com/jimf8th/my-skool-club-sub000/pkg/httputil"
	"github.com/jimf8th/my-skool-club-sub000/pkg/middleware"
)

// CheckoutHandlers handles equipment checkout HTTP requests
type CheckoutHandlers struct {
	svc    *checkouts.Service
	shared *approvableRoutes[*checkouts.Checkout]
}

// NewCheckoutHandlers creates a new CheckoutHandlers
func NewCheckoutHandlers(svc *checkouts.Service) *CheckoutHandlers {
	return &CheckoutHandlers{
		svc:    svc,
		shared: &approvableRoutes[*checkouts.Checkout]{machine: svc.Machine},
	}
}

// RegisterRoutes registers checkout routes
func (h *CheckoutHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/clubs/{id}/checkouts", h.create).Methods("POST")
	h.shared.register(router, "/checkouts")
	router.HandleFunc("/checkouts/{id}", h.update).Methods("PATCH")
	router.HandleFunc("/checkouts/{id}/return", h.step(h.svc.MarkReturned)).Methods("POST")
	router.HandleFunc("/checkouts/{id}/cancel", h.step(h.svc.Cancel)).Methods("POST")
}

func (h *CheckoutHandlers) create(w http.ResponseWriter, r *http.Request) {
	clubID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req CreateCheckoutRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	c := &checkouts.Checkout{Items: req.Items, Notes: req.Notes}
	if req.CheckoutDate != nil {
		c.CheckoutDate = req.CheckoutDate.Time
	}
	c.DueDate = req.DueDate.Ptr()

	created, err := h.svc.Create(r.Context(), middleware.Caller(r), clubID, c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, created)
}

func (h *CheckoutHandlers) update(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req UpdateCheckoutRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	c, err := h.svc.Update(r.Context(), middleware.Caller(r), id, checkouts.Update{
		Items:        req.Items,
		CheckoutDate: req.CheckoutDate.Ptr(),
		DueDate:      req.DueDate.Ptr(),
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, c)
}

func (h *CheckoutHandlers) step(op stepFunc[*checkouts.Checkout]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.shared.apply(w, r, op)
	}
}
