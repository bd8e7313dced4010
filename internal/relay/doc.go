// Package relay brokers real-time traffic between one embedded window
// device and any number of observer clients.
//
// The device reports telemetry (temperature, light, window position,
// operating mode) as JSON frames; observers receive a state snapshot on
// every accepted report and may issue the commands Open, Close, or Auto,
// which are forwarded verbatim to the device.
//
// Three pieces cooperate:
//   - Registry tracks live connections and their one-shot role
//     classification (Device or Observer).
//   - StateStore holds the single system state and applies device
//     reports atomically, detecting window-position transitions.
//   - Engine dispatches frames by role, fans snapshots out to
//     observers, forwards commands to the device, and drives the
//     notifier and telemetry archive as best-effort side effects.
//
// The engine never blocks on a peer: outbound delivery is buffered
// per connection and slow observers are skipped, so a broken dashboard
// cannot stall the device path. All external collaborators (archive,
// notifier) are fire and forget.
package relay
