// Package server exposes the session controller to a browser page.
//
// The JSON API mirrors the presentation boundary: GET /api/state returns the
// current snapshot, POST /api/start and POST /api/stop issue commands, and PUT
// /api/credential replaces the analysis key. GET /ws upgrades to a websocket
// that streams snapshots out and accepts the same commands plus binary audio
// chunks recorded by the page. GET /metrics serves Prometheus collectors when
// enabled and GET /healthz reports liveness.
package server
