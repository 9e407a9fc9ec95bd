package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jimf8th/my-skool-club-sub000/pkg/audit"
	"github.com/jimf8th/my-skool-club-sub000/pkg/auth"
	"github.com/jimf8th/my-skool-club-sub000/pkg/checkouts"
	"github.com/jimf8th/my-skool-club-sub000/pkg/invoices"
	"github.com/jimf8th/my-skool-club-sub000/pkg/lifecycle"
	"github.com/jimf8th/my-skool-club-sub000/pkg/members"
	"github.com/jimf8th/my-skool-club-sub000/pkg/middleware"
	"github.com/jimf8th/my-skool-club-sub000/pkg/rbac"
	"github.com/jimf8th/my-skool-club-sub000/pkg/schools"
	"github.com/jimf8th/my-skool-club-sub000/pkg/storage"
)

type testAPI struct {
	t       *testing.T
	handler http.Handler
}

func newTestAPI(t *testing.T, opts Options) *testAPI {
	t.Helper()
	ctx := context.Background()
	db := storage.NewTestDB(t)

	memberStore := members.NewStore(db).WithHashCost(bcrypt.MinCost)
	grantStore := rbac.NewStore(db)
	schoolStore := schools.NewStore(db)
	resolver := rbac.NewResolver(memberStore, grantStore).WithCache(rbac.NewLRUCache(100, time.Minute))
	enforcer := rbac.NewEnforcer(resolver, rbac.NewGuard())
	grantService := rbac.NewGrantService(grantStore, memberStore, schoolStore, enforcer)
	rec := audit.NewRecorder(audit.NewNoOpLogger())

	root := &members.Member{Email: "root@example.com", GlobalRole: members.RoleAppAdmin, Lifecycle: lifecycle.Active}
	require.NoError(t, memberStore.Create(ctx, root, "root-password"))

	svc := Services{
		Auth:      auth.NewManager(auth.NewStore(db), memberStore, time.Hour).WithAudit(rec),
		Schools:   schools.NewService(db, schoolStore, memberStore, grantStore, grantService, enforcer).WithAudit(rec),
		Grants:    grantService.WithAudit(rec),
		Invoices:  invoices.NewService(db, schoolStore, enforcer),
		Checkouts: checkouts.NewService(db, schoolStore, enforcer),
	}
	return &testAPI{t: t, handler: NewServer(svc, opts)}
}

func (a *testAPI) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func (a *testAPI) expect(code int, w *httptest.ResponseRecorder, into interface{}) {
	a.t.Helper()
	require.Equal(a.t, code, w.Code, "body: %s", w.Body.String())
	if into != nil {
		require.NoError(a.t, json.NewDecoder(w.Body).Decode(into))
	}
}

func (a *testAPI) login(email, password string) string {
	a.t.Helper()
	var resp LoginResponse
	a.expect(http.StatusCreated, a.do("POST", "/v1/auth/login", "", LoginRequest{Email: email, Password: password}), &resp)
	return resp.Token
}

type idBody struct {
	ID int64 `json:"id"`
}

type recordBody struct {
	ID              int64  `json:"id"`
	Number          string `json:"number"`
	Status          string `json:"status"`
	ApprovalStatus  string `json:"approval_status"`
	RejectionReason string `json:"rejection_reason"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *testAPI) activeMember(rootToken string, schoolID int64, email string) int64 {
	a.t.Helper()
	var m idBody
	a.expect(http.StatusCreated, a.do("POST", "/v1/members", rootToken, map[string]interface{}{
		"email": email, "password": "password123", "school_id": schoolID,
	}), &m)
	a.expect(http.StatusOK, a.do("POST", fmt.Sprintf("/v1/members/%d/activate", m.ID), rootToken, nil), nil)
	return m.ID
}

func TestAPI_InvoiceWorkflow(t *testing.T) {
	a := newTestAPI(t, Options{MaxBodyBytes: 1 << 20})
	root := a.login("root@example.com", "root-password")

	var school, club idBody
	a.expect(http.StatusCreated, a.do("POST", "/v1/schools", root, CreateSchoolRequest{Name: "North High"}), &school)
	a.expect(http.StatusCreated, a.do("POST", fmt.Sprintf("/v1/schools/%d/clubs", school.ID), root, CreateClubRequest{Name: "Chess"}), &club)

	a.activeMember(root, school.ID, "pat@north.example")
	adaID := a.activeMember(root, school.ID, "ada@north.example")
	a.expect(http.StatusOK, a.do("PUT", fmt.Sprintf("/v1/clubs/%d/grants/%d", club.ID, adaID), root, GrantRequest{Role: rbac.ClubAdmin}), nil)

	pat := a.login("pat@north.example", "password123")
	ada := a.login("ada@north.example", "password123")
	a.expect(http.StatusOK, a.do("POST", fmt.Sprintf("/v1/clubs/%d/enroll", club.ID), pat, nil), nil)

	var inv recordBody
	a.expect(http.StatusCreated, a.do("POST", fmt.Sprintf("/v1/clubs/%d/invoices", club.ID), pat, map[string]interface{}{
		"items":    []map[string]interface{}{{"description": "Dues", "quantity": 2, "unit_price": "10.50"}},
		"due_date": "2026-12-01",
	}), &inv)
	assert.Equal(t, "PENDING", inv.Status)
	assert.Equal(t, "PENDING", inv.ApprovalStatus)
	assert.Regexp(t, `^INV-\d{8}-`, inv.Number)

	invPath := fmt.Sprintf("/v1/invoices/%d", inv.ID)

	var e errorBody
	a.expect(http.StatusForbidden, a.do("POST", invPath+"/approve", pat, nil), &e)
	assert.Equal(t, "forbidden", e.Error)

	var approved recordBody
	a.expect(http.StatusOK, a.do("POST", invPath+"/approve", ada, nil), &approved)
	assert.Equal(t, "APPROVED", approved.ApprovalStatus)
	assert.Equal(t, "APPROVED", approved.Status)

	a.expect(http.StatusConflict, a.do("POST", invPath+"/approve", ada, nil), &e)
	assert.Equal(t, "invalid_state", e.Error)

	a.expect(http.StatusConflict, a.do("PATCH", invPath, pat, map[string]interface{}{"notes": "late edit"}), nil)

	var sent recordBody
	a.expect(http.StatusOK, a.do("POST", invPath+"/send", ada, nil), &sent)
	assert.Equal(t, "SENT", sent.Status)

	var page struct {
		Items []recordBody `json:"items"`
		Total int          `json:"total"`
	}
	a.expect(http.StatusOK, a.do("GET", "/v1/invoices?status=SENT", pat, nil), &page)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, inv.ID, page.Items[0].ID)

	a.expect(http.StatusBadRequest, a.do("GET", "/v1/invoices?status=SHIPPED", pat, nil), &e)
	assert.Equal(t, "validation", e.Error)
	a.expect(http.StatusNotFound, a.do("GET", "/v1/invoices/9999", root, nil), nil)
	a.expect(http.StatusBadRequest, a.do("GET", "/v1/invoices/abc", root, nil), nil)
}

func TestAPI_CheckoutWorkflow(t *testing.T) {
	a := newTestAPI(t, Options{})
	root := a.login("root@example.com", "root-password")

	var school, club idBody
	a.expect(http.StatusCreated, a.do("POST", "/v1/schools", root, CreateSchoolRequest{Name: "South"}), &school)
	a.expect(http.StatusCreated, a.do("POST", fmt.Sprintf("/v1/schools/%d/clubs", school.ID), root, CreateClubRequest{Name: "Robotics"}), &club)
	a.activeMember(root, school.ID, "sam@south.example")
	sam := a.login("sam@south.example", "password123")
	a.expect(http.StatusOK, a.do("POST", fmt.Sprintf("/v1/clubs/%d/enroll", club.ID), sam, nil), nil)

	path := fmt.Sprintf("/v1/clubs/%d/checkouts", club.ID)
	items := []map[string]interface{}{{"name": "Soldering iron", "quantity": 1}}

	var e errorBody
	a.expect(http.StatusBadRequest, a.do("POST", path, sam, map[string]interface{}{
		"items": items, "checkout_date": "2026-10-05", "due_date": "2026-10-01",
	}), &e)
	assert.Contains(t, e.Message, "due date before checkout date")

	var c recordBody
	a.expect(http.StatusCreated, a.do("POST", path, sam, map[string]interface{}{
		"items": items, "checkout_date": "2026-10-05", "due_date": "2026-10-05",
	}), &c)
	assert.Equal(t, "PENDING", c.Status)

	cPath := fmt.Sprintf("/v1/checkouts/%d", c.ID)
	a.expect(http.StatusBadRequest, a.do("POST", cPath+"/reject", root, RejectRequest{Reason: "   "}), nil)

	var rejected recordBody
	a.expect(http.StatusOK, a.do("POST", cPath+"/reject", root, RejectRequest{Reason: "out of stock"}), &rejected)
	assert.Equal(t, "REJECTED", rejected.ApprovalStatus)
	assert.Equal(t, "out of stock", rejected.RejectionReason)

	a.expect(http.StatusConflict, a.do("POST", cPath+"/return", root, nil), nil)
}

func TestAPI_Authentication(t *testing.T) {
	a := newTestAPI(t, Options{})

	var e errorBody
	a.expect(http.StatusUnauthorized, a.do("GET", "/v1/auth/me", "", nil), &e)
	assert.Equal(t, "unauthenticated", e.Error)
	a.expect(http.StatusUnauthorized, a.do("GET", "/v1/invoices", "skc_not-a-real-token", nil), nil)
	a.expect(http.StatusUnauthorized, a.do("POST", "/v1/auth/login", "", LoginRequest{Email: "root@example.com", Password: "nope"}), nil)
	a.expect(http.StatusBadRequest, a.do("POST", "/v1/auth/login", "", map[string]string{"user": "root"}), nil)

	token := a.login("ROOT@example.com", "root-password")

	var me struct {
		Email        string `json:"email"`
		PasswordHash string `json:"password_hash"`
	}
	a.expect(http.StatusOK, a.do("GET", "/v1/auth/me", token, nil), &me)
	assert.Equal(t, "root@example.com", me.Email)
	assert.Empty(t, me.PasswordHash)

	var tokens []struct {
		ID          int64  `json:"id"`
		TokenPrefix string `json:"token_prefix"`
	}
	a.expect(http.StatusOK, a.do("GET", "/v1/auth/tokens", token, nil), &tokens)
	require.Len(t, tokens, 1)

	a.expect(http.StatusNoContent, a.do("POST", "/v1/auth/logout", token, nil), nil)
	a.expect(http.StatusUnauthorized, a.do("GET", "/v1/auth/me", token, nil), nil)

	a.expect(http.StatusNotFound, a.do("GET", "/v1/nowhere", "", nil), nil)
}

func TestAPI_LoginRateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(&middleware.RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Hour})
	a := newTestAPI(t, Options{LoginLimiter: limiter})

	bad := LoginRequest{Email: "root@example.com", Password: "guess"}
	a.expect(http.StatusUnauthorized, a.do("POST", "/v1/auth/login", "", bad), nil)
	a.expect(http.StatusUnauthorized, a.do("POST", "/v1/auth/login", "", bad), nil)
	a.expect(http.StatusTooManyRequests, a.do("POST", "/v1/auth/login", "", bad), nil)
}

func TestAPI_MemberAdministration(t *testing.T) {
	a := newTestAPI(t, Options{})
	root := a.login("root@example.com", "root-password")

	var school idBody
	a.expect(http.StatusCreated, a.do("POST", "/v1/schools", root, CreateSchoolRequest{
		Name: "East", AdminEmails: []string{"head@east.example"},
	}), &school)

	headID := a.activeMember(root, school.ID, "head@east.example")
	var head struct {
		GlobalRole string `json:"global_role"`
	}
	a.expect(http.StatusOK, a.do("GET", fmt.Sprintf("/v1/members/%d", headID), root, nil), &head)
	assert.Equal(t, string(members.RoleSchoolAdmin), head.GlobalRole)

	headToken := a.login("head@east.example", "password123")
	var created idBody
	a.expect(http.StatusCreated, a.do("POST", "/v1/members", headToken, map[string]string{
		"email": "kid@east.example", "password": "password123",
	}), &created)
	a.expect(http.StatusForbidden, a.do("PUT", fmt.Sprintf("/v1/members/%d/role", created.ID), headToken, GlobalRoleRequest{GlobalRole: members.RoleSchoolAdmin}), nil)

	a.expect(http.StatusOK, a.do("PUT", fmt.Sprintf("/v1/schools/%d/admin-emails", school.ID), root, AdminEmailsRequest{AdminEmails: []string{}}), nil)
	a.expect(http.StatusOK, a.do("GET", fmt.Sprintf("/v1/members/%d", headID), root, nil), &head)
	assert.Equal(t, string(members.RoleSchoolUser), head.GlobalRole, "removal from the admin list demotes")

	var list []idBody
	a.expect(http.StatusOK, a.do("GET", fmt.Sprintf("/v1/schools/%d/members", school.ID), root, nil), &list)
	assert.Len(t, list, 2)

	a.expect(http.StatusNoContent, a.do("DELETE", fmt.Sprintf("/v1/members/%d", created.ID), root, nil), nil)
}

func TestDate_UnmarshalJSON(t *testing.T) {
	var d Date
	require.NoError(t, json.Unmarshal([]byte(`"2026-03-04"`), &d))
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), d.Time)

	require.NoError(t, json.Unmarshal([]byte(`"2026-03-04T23:15:00Z"`), &d))
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), d.Time)

	assert.Error(t, json.Unmarshal([]byte(`"next week"`), &d))
	assert.Nil(t, (*Date)(nil).Ptr())
}
