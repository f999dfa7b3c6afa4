// Package api implements the HTTP surface of pulsewatch-server on a chi
// router with allow-all CORS.
//
// New(deps, log) returns an http.Handler that serves:
//
//	POST   /api/data                 ingest a reading (201, 400, 500)
//	GET    /api/data                 samples newest first (?hours=24&limit=100)
//	GET    /api/data/stats           aggregate (?hours=24)
//	GET    /api/data/latest          newest sample; 404 when empty
//	GET    /api/alerts               alerts with their sample (?limit=50&skip=0&unreadOnly=true)
//	GET    /api/alerts/count         unread count
//	PUT    /api/alerts/{id}/read     idempotent; 404 when missing
//	PUT    /api/alerts/{id}/resolve  idempotent; 404 when missing
//	DELETE /api/alerts/{id}          404 when missing
//	GET    /api/report/stats         rounded report stats (?days=30)
//	GET    /api/report/monthly       monthly stats (?month=&year=&email=)
//	GET    /api/health               liveness and live subscriber count
//	GET    /metrics                  Prometheus exposition
//	GET    /ws/stream                live WebSocket channel
//
// Successful responses use the {success, data, count?} envelope; errors are
// {error, details?}. Every request passes through RequestID, Logging and
// Recovery.
package api
