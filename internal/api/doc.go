// Package api implements the HTTP REST API for the people-counter bridge.
//
// This package provides:
//   - Read access to the live counter record and its history
//   - Counter resets, routed through the serial access queue
//   - The runtime switch that enables or disables polling
//   - Queue and serial codec diagnostics
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// The server follows the same lifecycle pattern as the other components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// # Graceful Degradation
//
// The server runs without InfluxDB. /health reports "degraded" when the
// database, MQTT or InfluxDB check fails or the serial port is closed, but
// still answers 200.
package api
