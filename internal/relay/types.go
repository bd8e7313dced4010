package relay

import (
	"errors"
	"strings"
	"time"
)

// Role classifies a live connection. A connection starts Unknown and
// transitions exactly once to Device or Observer; it never reverts.
type Role string

const (
	RoleUnknown  Role = "unknown"
	RoleDevice   Role = "device"
	RoleObserver Role = "observer"
)

// ParseRole maps a wire role token to a Role. Only the exact tokens
// "Device" and "Observer" are recognised.
func ParseRole(token string) (Role, bool) {
	switch token {
	case "Device":
		return RoleDevice, true
	case "Observer":
		return RoleObserver, true
	default:
		return RoleUnknown, false
	}
}

// WindowPosition is the reported physical window state.
type WindowPosition string

const (
	WindowOpen   WindowPosition = "Open"
	WindowClosed WindowPosition = "Closed"
)

// ControlMode is the device's operating mode.
type ControlMode string

const (
	ModeAuto   ControlMode = "Auto"
	ModeManual ControlMode = "Manual"
)

// Command vocabulary accepted from observers and forwarded verbatim to
// the device.
const (
	CommandOpen  = "Open"
	CommandClose = "Close"
	CommandAuto  = "Auto"
)

// ParseCommand strips leading/trailing whitespace and checks the result
// against the fixed command vocabulary. Matching is case-sensitive and
// exact; anything else is not a command.
func ParseCommand(payload string) (string, bool) {
	cmd := strings.TrimSpace(payload)
	switch cmd {
	case CommandOpen, CommandClose, CommandAuto:
		return cmd, true
	default:
		return "", false
	}
}

// Report is a device telemetry frame.
type Report struct {
	Temperature float64        `json:"temperature"`
	Light       float64        `json:"light"`
	Window      WindowPosition `json:"window"`
	Mode        ControlMode    `json:"mode"`
}

// Snapshot is an immutable copy of the system state at one point in time.
//
// UpdatedAt is nil until the first device report has been accepted.
type Snapshot struct {
	Temperature float64        `json:"temperature"`
	Light       float64        `json:"light"`
	Window      WindowPosition `json:"window"`
	Mode        ControlMode    `json:"mode"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
}

// Wire directive prefixes.
const (
	prefixRole = "ROLE:"
	prefixUser = "USER:"
)

// Sentinel errors for relay operations.
var (
	// ErrProtocol covers duplicate classification, unrecognised role
	// tokens, and identity binding on a non-observer connection. The
	// offending connection should be closed.
	ErrProtocol = errors.New("relay: protocol violation")

	// ErrMalformedReport covers device telemetry that fails to parse or
	// carries out-of-vocabulary window/mode values. The message is
	// dropped; the connection stays up.
	ErrMalformedReport = errors.New("relay: malformed device report")

	// ErrUnknownConnection is returned for operations on an id that is
	// not (or no longer) registered.
	ErrUnknownConnection = errors.New("relay: unknown connection")
)
