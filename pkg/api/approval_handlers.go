package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jimf8th/my-skool-club-sub000/pkg/apperr"
	"github.com/jimf8th/my-skool-club-sub000/pkg/approval"
	"github.com/jimf8th/my-skool-club-sub000/pkg/httputil"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/middleware"
)

// stepFunc is a single-record operation of one approvable kind
type stepFunc[T approval.Approvable] func(ctx context.Context, caller *members.Member, id int64) (T, error)

// approvableRoutes serves the operations every approvable kind shares:
// list, get, delete, approve and reject.
type approvableRoutes[T approval.Approvable] struct {
	machine *approval.Machine[T]
}

func (h *approvableRoutes[T]) register(router *mux.Router, base string) {
	router.HandleFunc(base, h.list).Methods("GET")
	router.HandleFunc(base+"/{id}", h.get).Methods("GET")
	router.HandleFunc(base+"/{id}", h.delete).Methods("DELETE")
	router.HandleFunc(base+"/{id}/approve", h.approve).Methods("POST")
	router.HandleFunc(base+"/{id}/reject", h.reject).Methods("POST")
}

// list handles GET {base}?club_id=&status=&approval_status=&limit=&offset=
func (h *approvableRoutes[T]) list(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := h.machine.List(r.Context(), middleware.Caller(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, page)
}

func (h *approvableRoutes[T]) parseFilter(r *http.Request) (approval.Filter, error) {
	var f approval.Filter
	var err error

	if f.ClubID, err = httputil.ParseQueryInt64Ptr(r, "club_id"); err != nil {
		return f, err
	}
	if f.Limit, err = httputil.ParseQueryInt(r, "limit", approval.DefaultPageSize); err != nil {
		return f, err
	}
	if f.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return f, err
	}
	if v := httputil.ParseQueryString(r, "status", ""); v != "" {
		st, err := h.machine.Spec().ParseStatus(v)
		if err != nil {
			return f, apperr.Validation("%s", err.Error())
		}
		f.Status = &st
	}
	if v := httputil.ParseQueryString(r, "approval_status", ""); v != "" {
		as, err := approval.ParseApprovalStatus(v)
		if err != nil {
			return f, apperr.Validation("%s", err.Error())
		}
		f.ApprovalStatus = &as
	}
	return f, nil
}

func (h *approvableRoutes[T]) get(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.machine.Get)
}

func (h *approvableRoutes[T]) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.machine.Delete(r.Context(), middleware.Caller(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *approvableRoutes[T]) approve(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, h.machine.Approve)
}

func (h *approvableRoutes[T]) reject(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	h.apply(w, r, func(ctx context.Context, caller *members.Member, id int64) (T, error) {
		return h.machine.Reject(ctx, caller, id, req.Reason)
	})
}

// apply runs a single-record operation on the {id} path parameter and writes the result
func (h *approvableRoutes[T]) apply(w http.ResponseWriter, r *http.Request, op stepFunc[T]) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	item, err := op(r.Context(), middleware.Caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, item)
}
