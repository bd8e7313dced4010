// Package influxdb provides the telemetry archive for Casement Core.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, append-only record writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Relay traffic records (device reports and observer commands)
//   - Window state history
//   - Dispatched transition notifications
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "casement",
//	    Bucket: "telemetry",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteRelayLog("command", "observer", "u-042", "Open")
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via
// the SetOnError callback. Connection and health check errors are
// returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size,
// flush_interval). The archive is an optional collaborator: when the
// server is unreachable the relay keeps working and records are dropped.
package influxdb
