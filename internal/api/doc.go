// Package api implements the HTTP and WebSocket boundary of lexhost.
//
// This package provides:
//   - The query bridge over HTTP (POST /api/v1/bridge/query, /bridge/asset)
//   - The same bridge over a WebSocket request/response channel, which also
//     pushes provisioning state changes
//   - Provisioning status and retry endpoints
//   - Optional JWT bearer auth, with single-use tickets for WebSocket upgrades
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - The bundled web UI at "/"
//
// Bridge calls are refused with 503 and code "not_ready" until the startup
// task reports the databases are provisioned.
//
// The server follows the same lifecycle as the infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
