// Package config loads clubd configuration.
//
// Values come from three layers, later ones winning: built-in defaults, the
// YAML file named by CLUB_CONFIG_FILE, and CLUB_* environment variables.
//
//	CLUB_PORT="8080"
//	CLUB_HEALTH_PORT="9090"
//	CLUB_DB_DRIVER="postgres"            # postgres or sqlite3
//	CLUB_DB_URL="postgres://localhost/skoolclub?sslmode=disable"
//	CLUB_REDIS_ENABLED="true"
//	CLUB_REDIS_URL="redis://localhost:6379/0"
//	CLUB_ROLE_CACHE_TTL="1m"
//	CLUB_LIST_SCOPE_POLICY="fallback"    # fallback or reject
//	CLUB_TOKEN_TTL="24h"                 # 0 issues tokens that never expire
//	CLUB_TOKEN_PREFIX="skc_"             # lowercase letters ending in '_'
//	CLUB_JOBS_OVERDUE_REPORT="*/15 * * * *"
//	CLUB_LOG_LEVEL="info"
//	CLUB_OTEL_ENABLED="false"
//
// The YAML file mirrors the struct layout:
//
//	server:
//	  port: "8080"
//	database:
//	  driver: sqlite3
//	  url: file:club.db
//	policy:
//	  list_scope: reject
//
// LoadConfig validates the result; an invalid cron schedule, driver or policy
// fails startup.
package config
