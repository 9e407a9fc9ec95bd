// Package cli implements clubctl, the operator tool for the club server.
//
// Every command connects to the database named by the loaded configuration
// (CLUB_DB_DRIVER, CLUB_DB_URL or CLUB_CONFIG_FILE); -driver and -db-url override it.
//
//	clubctl migrate
//	clubctl bootstrap-admin -email root@example.com -name "Site Admin"
//	clubctl issue-token -email root@example.com -ttl 720h
//	clubctl cleanup-tokens
//	clubctl audit -type approval.approve -since 24h
//	clubctl audit-archive -bucket club-audit -since 24h
//
// bootstrap-admin is the only way to create the first APP_ADMIN; the HTTP API
// always needs an authenticated caller. The password comes from -password or
// CLUB_BOOTSTRAP_PASSWORD.
package cli
