package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jimf8th/my-skool-club-sub000/pkg/httputil"
	"github.com/jimf8th/my-skool-club-sub000/pkg/middleware"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/schools"
)

// SchoolHandlers handles tenancy: schools, clubs, club grants and member administration
type SchoolHandlers struct {
	schools *schools.Service
	grants  *rbac.GrantService
}

// NewSchoolHandlers creates a new SchoolHandlers
func NewSchoolHandlers(svc *schools.Service, grants *rbac.GrantService) *SchoolHandlers {
	return &SchoolHandlers{schools: svc, grants: grants}
}

// RegisterRoutes registers school, club and member routes
func (h *SchoolHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/schools", h.createSchool).Methods("POST")
	router.HandleFunc("/schools", h.listSchools).Methods("GET")
	router.HandleFunc("/schools/{id}", h.getSchool).Methods("GET")
	router.HandleFunc("/schools/{id}", h.deleteSchool).Methods("DELETE")

	// Admin emails
	router.HandleFunc("/schools/{id}/admin-emails", h.setAdminEmails).Methods("PUT")
	router.HandleFunc("/schools/{id}/admin-emails", h.addAdminEmail).Methods("POST")
	router.HandleFunc("/schools/{id}/admin-emails/{email}", h.removeAdminEmail).Methods("DELETE")

	// Clubs
	router.HandleFunc("/schools/{id}/clubs", h.createClub).Methods("POST")
	router.HandleFunc("/schools/{id}/clubs", h.listClubs).Methods("GET")
	router.HandleFunc("/clubs/{id}", h.getClub).Methods("GET")
	router.HandleFunc("/clubs/{id}", h.editClub).Methods("PATCH")
	router.HandleFunc("/clubs/{id}", h.deleteClub).Methods("DELETE")
	router.HandleFunc("/clubs/{id}/enroll", h.enroll).Methods("POST")

	// Club role grants
	router.HandleFunc("/clubs/{id}/grants", h.listGrants).Methods("GET")
	router.HandleFunc("/clubs/{id}/grants/{member_id}", h.grantRole).Methods("PUT")
	router.HandleFunc("/clubs/{id}/grants/{member_id}", h.revokeRole).Methods("DELETE")

	// Members
	router.HandleFunc("/members", h.createMember).Methods("POST")
	router.HandleFunc("/schools/{id}/members", h.listMembers).Methods("GET")
	router.HandleFunc("/members/{id}", h.getMember).Methods("GET")
	router.HandleFunc("/members/{id}", h.deleteMember).Methods("DELETE")
	router.HandleFunc("/members/{id}/activate", h.activateMember).Methods("POST")
	router.HandleFunc("/members/{id}/deactivate", h.deactivateMember).Methods("POST")
	router.HandleFunc("/members/{id}/role", h.setGlobalRole).Methods("PUT")
}

func (h *SchoolHandlers) createSchool(w http.ResponseWriter, r *http.Request) {
	var req CreateSchoolRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	school, err := h.schools.CreateSchool(r.Context(), middleware.Caller(r), req.Name, req.AdminEmails)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, school)
}

func (h *SchoolHandlers) listSchools(w http.ResponseWriter, r *http.Request) {
	list, err := h.schools.ListSchools(r.Context(), middleware.Caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (h *SchoolHandlers) getSchool(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	school, err := h.schools.GetSchool(r.Context(), middleware.Caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, school)
}

func (h *SchoolHandlers) deleteSchool(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.schools.DeleteSchool(r.Context(), middleware.Caller(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *SchoolHandlers) setAdminEmails(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req AdminEmailsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	school, err := h.schools.SetAdminEmails(r.Context(), middleware.Caller(r), id, req.AdminEmails)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, school)
}

func (h *SchoolHandlers) addAdminEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req AdminEmailRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	school, err := h.schools.AddAdminEmail(r.Context(), middleware.Caller(r), id, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, school)
}

func (h *SchoolHandlers) removeAdminEmail(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	school, err := h.schools.RemoveAdminEmail(r.Context(), middleware.Caller(r), id, mux.Vars(r)["email"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, school)
}

func (h *SchoolHandlers) createClub(w http.ResponseWriter, r *http.Request) {
	schoolID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req CreateClubRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	club, err := h.schools.CreateClub(r.Context(), middleware.Caller(r), schoolID, req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, club)
}

func (h *SchoolHandlers) listClubs(w http.ResponseWriter, r *http.Request) {
	schoolID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	clubs, err := h.schools.ListClubs(r.Context(), middleware.Caller(r), schoolID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, clubs)
}

func (h *SchoolHandlers) getClub(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	club, err := h.schools.GetClub(r.Context(), middleware.Caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, club)
}

func (h *SchoolHandlers) editClub(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var upd schools.ClubUpdate
	if !httputil.ParseJSONOrError(w, r, &upd) {
		return
	}
	club, err := h.schools.EditClub(r.Context(), middleware.Caller(r), id, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, club)
}

func (h *SchoolHandlers) deleteClub(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.schools.DeleteClub(r.Context(), middleware.Caller(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *SchoolHandlers) enroll(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	grant, err := h.schools.Enroll(r.Context(), middleware.Caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, grant)
}

func (h *SchoolHandlers) listGrants(w http.ResponseWriter, r *http.Request) {
	clubID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	grants, err := h.grants.ListClubGrants(r.Context(), middleware.Caller(r), clubID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, grants)
}

func (h *SchoolHandlers) grantRole(w http.ResponseWriter, r *http.Request) {
	clubID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "member_id")
	if !ok {
		return
	}
	var req GrantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	grant, err := h.grants.GrantClubRole(r.Context(), middleware.Caller(r), memberID, clubID, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, grant)
}

func (h *SchoolHandlers) revokeRole(w http.ResponseWriter, r *http.Request) {
	clubID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	memberID, ok := httputil.ParsePathInt64OrError(w, r, "member_id")
	if !ok {
		return
	}
	revoked, err := h.grants.RevokeClubRole(r.Context(), middleware.Caller(r), memberID, clubID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, RevokeResponse{Revoked: revoked})
}

func (h *SchoolHandlers) createMember(w http.ResponseWriter, r *http.Request) {
	var req schools.NewMember
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	member, err := h.schools.CreateMember(r.Context(), middleware.Caller(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, member)
}

func (h *SchoolHandlers) listMembers(w http.ResponseWriter, r *http.Request) {
	schoolID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	list, err := h.schools.ListMembers(r.Context(), middleware.Caller(r), schoolID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, list)
}

func (h *SchoolHandlers) getMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	member, err := h.schools.GetMember(r.Context(), middleware.Caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}

func (h *SchoolHandlers) deleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.schools.DeleteMember(r.Context(), middleware.Caller(r), id); err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *SchoolHandlers) activateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	member, err := h.schools.ActivateMember(r.Context(), middleware.Caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}

func (h *SchoolHandlers) deactivateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	member, err := h.schools.DeactivateMember(r.Context(), middleware.Caller(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}

func (h *SchoolHandlers) setGlobalRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req GlobalRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	member, err := h.schools.SetGlobalRole(r.Context(), middleware.Caller(r), id, req.GlobalRole)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, member)
}
