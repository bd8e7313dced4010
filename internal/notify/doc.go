// Package notify delivers one-shot window-transition notifications.
//
// The relay engine calls Notify once per window-position change; the
// dispatcher queues the text in a bounded channel and a single worker
// pushes it to every configured sink (MQTT topic, HTTP webhook). A full
// queue drops rather than blocks, and sink failures are logged and
// swallowed; notification trouble must never reach the relay path.
package notify
