// Package schools administers tenants: schools and their admin lists, clubs,
// and member accounts.
//
// A school's admin-email list drives global roles. Adding an email promotes a
// SCHOOL_USER with that email to SCHOOL_ADMIN; removing it demotes them back to
// SCHOOL_USER unless another school still lists the same email. Deleting a
// school or club cascades to the grants of its clubs.
//
// Store also implements rbac.ClubLookup so the grant service can resolve clubs.
package schools
