// Package counter implements the people-counter bridge for Gray Logic.
//
// A people counter is an overhead sensor on an RS-232/RS-485 serial line. It
// answers short ASCII command frames with its entry, exit and occupancy
// counts plus a handful of status flags.
//
// # Architecture
//
//	┌──────────┐   ┌───────┐   ┌───────┐   serial   ┌─────────┐
//	│  Poller  │──►│ Queue │──►│ Codec │◄──────────►│ Counter │
//	└────┬─────┘   └───▲───┘   └───────┘            └─────────┘
//	     │             │
//	     │      ┌──────┴─────────┐
//	     │      │ CommandHandler │◄── graylogic/command/counter/#
//	     │      └────────────────┘
//	     ▼
//	 SQLite live state + history, MQTT state, InfluxDB
//
// # Components
//
//   - Codec: owns the port, encodes frames, enforces the response deadline
//   - Queue: single-file FIFO access to the codec with per-job results
//   - Poller: ticks, queries, persists readings whose entry count changed
//   - CommandHandler: reset and read commands over MQTT, with acks
//   - HealthReporter: retained bridge health on graylogic/health/counter
//   - AlertPublisher: retained communication alert per sensor unit
//
// # Wire Format
//
// Outgoing frames are fixed templates followed by a line ending ("\r" by
// default):
//
//	[0000 BTR ]   read state
//	[0000 BTC ]   reset current
//	[0000 BTI ]   reset entries
//	[0000 BTD ]   reset exits
//
// A response is a bracketed, comma separated list of ten fields:
//
//	[0000 BTW ,000012,000007,000005,0,0,1,0,1,0]
//
// The first field is ignored. Then come entries, exits, current, output 1,
// output 2, count enabled, button, sensor health and limit exceeded.
//
// # Simulation
//
// With CodecConfig.Simulate set no port is opened. Each query takes one
// random-walk step and is rendered and re-parsed as a wire frame.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
package counter
