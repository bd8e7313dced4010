package relay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// StateStore holds the single logical system state for the deployment.
//
// Only the relay engine mutates it, and only through ApplyDeviceReport.
// The raw fields are never exposed; readers get immutable snapshot
// copies, so a concurrent reader can never observe a half-applied
// report.
type StateStore struct {
	mu      sync.RWMutex
	current Snapshot
}

// NewStateStore creates a state store holding the defined "unknown"
// default: zero temperature and light, window Closed, mode Auto, no
// update timestamp.
func NewStateStore() *StateStore {
	return &StateStore{
		current: Snapshot{Window: WindowClosed, Mode: ModeAuto},
	}
}

// ParseReport decodes a raw device frame into a Report.
//
// Non-numeric temperature/light, out-of-vocabulary window or mode
// values, or non-JSON input are all reported as ErrMalformedReport.
func ParseReport(data []byte) (Report, error) {
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrMalformedReport, err)
	}

	if report.Window != WindowOpen && report.Window != WindowClosed {
		return Report{}, fmt.Errorf("%w: window %q", ErrMalformedReport, report.Window)
	}
	if report.Mode != ModeAuto && report.Mode != ModeManual {
		return Report{}, fmt.Errorf("%w: mode %q", ErrMalformedReport, report.Mode)
	}

	return report, nil
}

// ApplyDeviceReport validates a report and, on acceptance, replaces the
// current snapshot atomically.
//
// The new snapshot is timestamped with the server's acceptance time, not
// any client-supplied time, so clock skew between device and server
// cannot reorder state history. A rejected report leaves the snapshot
// untouched.
//
// The returned bool reports whether the window position changed relative
// to the prior snapshot, which triggers a transition notification.
func (s *StateStore) ApplyDeviceReport(report Report) (Snapshot, bool, error) {
	if report.Window != WindowOpen && report.Window != WindowClosed {
		return Snapshot{}, false, fmt.Errorf("%w: window %q", ErrMalformedReport, report.Window)
	}
	if report.Mode != ModeAuto && report.Mode != ModeManual {
		return Snapshot{}, false, fmt.Errorf("%w: mode %q", ErrMalformedReport, report.Mode)
	}

	now := time.Now()

	s.mu.Lock()
	transitioned := s.current.Window != report.Window
	s.current = Snapshot{
		Temperature: report.Temperature,
		Light:       report.Light,
		Window:      report.Window,
		Mode:        report.Mode,
		UpdatedAt:   &now,
	}
	snapshot := s.current
	s.mu.Unlock()

	return snapshot, transitioned, nil
}

// Current returns the latest accepted snapshot.
func (s *StateStore) Current() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}
