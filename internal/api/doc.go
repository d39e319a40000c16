// Package api implements lanwake's HTTP REST API and WebSocket status stream.
//
// Routes (all under /api/v1):
//
//	GET    /health                 liveness, never authenticated
//	GET    /metrics                runtime and registry statistics
//	GET    /devices                registry snapshot with current statuses
//	POST   /devices                register a device
//	GET    /devices/{id}           one device with its status
//	PATCH  /devices/{id}           partial update
//	DELETE /devices/{id}           remove and stop monitoring
//	POST   /devices/{id}/move      {"index": n} reorder
//	POST   /devices/{id}/wake      send the magic packet
//	GET    /devices/{id}/status    current status only
//	GET    /status                 every device's status
//	GET    /audit                  activity trail (sqlite storage only)
//	GET    /ws                     WebSocket stream of status changes and wakes
//
// Errors are JSON {status, code, message}: 400 for malformed input, 404 for
// unknown devices, 502 when no magic packet could be transmitted.
//
// # Security
//
// When security.jwt.secret is set every route except /health requires an
// HS256 bearer token signed with it. Browsers cannot set headers on a
// WebSocket handshake, so /ws also accepts the token as ?access_token=.
// Tokens are minted with IssueToken (see `lanwake -issue-token`).
package api
