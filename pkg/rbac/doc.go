// Package rbac decides who may do what across the application, school and club scopes.
//
// # Roles
//
// Every member carries one global role (APP_ADMIN, SCHOOL_ADMIN or SCHOOL_USER)
// and any number of club grants (CLUB_ADMIN or CLUB_USER), at most one per club.
// The Resolver turns a member into a RoleSet snapshot holding both, with the
// club grants in the order they were first stored.
//
// # Decisions
//
// Guard.Authorize is a pure function of (RoleSet, Action, Resource). Rules are
// evaluated top to bottom and the first match decides:
//
//	APP_ADMIN                      allow everything
//	school create/delete           deny
//	school read/edit/admins        SCHOOL_ADMIN of that school
//	club create/delete             SCHOOL_ADMIN of the club's school
//	club edit                      CLUB_ADMIN of the club
//	club enroll                    school member, same school, active club, not yet enrolled
//	club read                      same school or any grant
//	club manage_roles              CLUB_ADMIN of the club or SCHOOL_ADMIN of its school
//	invoice/checkout create, read,
//	  edit, delete, submit         any grant for the club
//	approve, reject, return, send,
//	  pay, cancel                  CLUB_ADMIN of the club
//	member create/read/activate    SCHOOL_ADMIN of the member's school
//	otherwise                      deny "insufficient role"
//
// The Enforcer wraps the guard, converting denials into apperr.Forbidden and
// recording them in the audit trail and the authz metrics.
//
// # List scoping
//
// ResolveListScope narrows list queries to a single club. A caller asking for a
// club they hold no grant for gets their first club instead, or Forbidden under
// PolicyRejectForeignClub.
//
// # Caching
//
// Resolved role sets can be cached in process (LRUCache), in Redis (RedisCache)
// or both (TieredCache). GrantService invalidates affected members after every
// grant, revocation and enrollment.
package rbac
