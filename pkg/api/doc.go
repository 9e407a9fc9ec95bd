// Package api exposes the club core over HTTP/JSON.
//
// Handlers are thin: they decode the request, take the authenticated member
// from the request context and pass it explicitly to the core service, then
// encode the result. Error kinds map to statuses in pkg/httputil.
//
// # Routes
//
// Authentication:
//
//	POST   /v1/auth/login                      email + password -> bearer token
//	POST   /v1/auth/logout
//	GET    /v1/auth/me
//	GET    /v1/auth/tokens
//	DELETE /v1/auth/tokens/{id}
//
// Tenancy:
//
//	POST   /v1/schools                         GET /v1/schools
//	GET    /v1/schools/{id}                    DELETE /v1/schools/{id}
//	PUT    /v1/schools/{id}/admin-emails       replace the list
//	POST   /v1/schools/{id}/admin-emails       add one
//	DELETE /v1/schools/{id}/admin-emails/{email}
//	POST   /v1/schools/{id}/clubs              GET /v1/schools/{id}/clubs
//	GET    /v1/clubs/{id}                      PATCH, DELETE /v1/clubs/{id}
//	POST   /v1/clubs/{id}/enroll
//	GET    /v1/clubs/{id}/grants
//	PUT    /v1/clubs/{id}/grants/{member_id}   DELETE revokes
//	POST   /v1/members                         GET /v1/schools/{id}/members
//	GET    /v1/members/{id}                    DELETE /v1/members/{id}
//	POST   /v1/members/{id}/activate           POST /v1/members/{id}/deactivate
//	PUT    /v1/members/{id}/role
//
// Approvables (invoices shown; checkouts are the same with return instead of submit/send/pay):
//
//	POST   /v1/clubs/{id}/invoices
//	GET    /v1/invoices?club_id=&status=&approval_status=&limit=&offset=
//	GET    /v1/invoices/{id}                   PATCH, DELETE /v1/invoices/{id}
//	POST   /v1/invoices/{id}/approve           POST /v1/invoices/{id}/reject {"reason": "..."}
//	POST   /v1/invoices/{id}/submit|send|pay|cancel
package api
