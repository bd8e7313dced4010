package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRelayLog appends a relay traffic record to the archive.
//
// Every frame the relay engine accepts is recorded here: device reports,
// observer commands, and externally injected commands. The write is
// non-blocking; records are batched and sent asynchronously.
//
// Parameters:
//   - direction: Traffic direction ("report" or "command")
//   - role: Role of the originating connection ("device", "observer", "external")
//   - userID: Authenticated user behind the connection (empty for external)
//   - payload: The frame payload as received
//
// Example:
//
//	client.WriteRelayLog("command", "observer", "u-042", "Open")
func (c *Client) WriteRelayLog(direction, role, userID, payload string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"relay_log",
		map[string]string{
			"direction": direction,
			"role":      role,
		},
		map[string]interface{}{
			"user_id": userID,
			"payload": payload,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteCurrentState records a window state snapshot.
//
// Called whenever the relay engine applies a device report, so the
// archive holds the full state history. The point carries the snapshot's
// own timestamp rather than write time.
//
// Parameters:
//   - position: Window position ("Open" or "Closed")
//   - mode: Operating mode ("Auto" or "Manual")
//   - updatedAt: When the snapshot was applied
func (c *Client) WriteCurrentState(position, mode string, updatedAt time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"current_state",
		map[string]string{
			"position": position,
			"mode":     mode,
		},
		map[string]interface{}{
			// A tags-only point is rejected by the line protocol, so the
			// position rides along as a field too.
			"position": position,
		},
		updatedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteNotification records a dispatched transition notification.
//
// Parameters:
//   - sink: Delivery channel ("mqtt" or "webhook")
//   - message: The notification body as sent
func (c *Client) WriteNotification(sink, message string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"notifications",
		map[string]string{
			"sink": sink,
		},
		map[string]interface{}{
			"message": message,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
