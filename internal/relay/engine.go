package relay

import (
	"encoding/json"
	"strings"

	"github.com/nerrad567/casement-core/internal/infrastructure/logging"
)

// Notifier receives one-shot transition notifications. Delivery is best
// effort; implementations must not block.
type Notifier interface {
	Notify(text string)
}

// Archive records relay traffic and state history. All methods are fire
// and forget from the engine's perspective; implementations must not
// block the dispatch path.
type Archive interface {
	AppendLog(direction, role, userID, payload string)
	SetCurrent(snapshot Snapshot)
}

// Engine dispatches frames between the device and observer connections.
//
// Per-connection handling is strictly sequential (each transport feeds
// frames from a single goroutine), while handling across connections is
// concurrent. The engine holds no state of its own beyond its
// collaborators; ordering and atomicity live in the Registry and
// StateStore.
type Engine struct {
	registry *Registry
	store    *StateStore
	logger   *logging.Logger

	// Optional collaborators. A nil notifier or archive simply skips
	// that side effect.
	notifier Notifier
	archive  Archive
}

// NewEngine creates a relay engine around the given registry and store.
func NewEngine(registry *Registry, store *StateStore, logger *logging.Logger) *Engine {
	return &Engine{registry: registry, store: store, logger: logger}
}

// SetNotifier attaches the transition notifier.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// SetArchive attaches the telemetry archive.
func (e *Engine) SetArchive(a Archive) { e.archive = a }

// Registry exposes the connection registry to the transport layer.
func (e *Engine) Registry() *Registry { return e.registry }

// Store exposes the state store to read-only consumers.
func (e *Engine) Store() *StateStore { return e.store }

// HandleConnect registers a new transport connection and returns its id.
func (e *Engine) HandleConnect(sender Sender) string {
	id := e.registry.Register(sender)
	e.logger.Debug("relay connection opened", "conn_id", id)
	return id
}

// HandleDisconnect removes a connection. Safe to call more than once.
func (e *Engine) HandleDisconnect(id string) {
	e.registry.Unregister(id)
	e.logger.Debug("relay connection closed", "conn_id", id)
}

// HandleFrame processes one inbound frame from a connection.
//
// A returned error is always a protocol violation: the transport should
// close the connection. All other failure modes (malformed telemetry,
// unrecognised observer text, collaborator trouble) are absorbed here
// and never surface to the peer.
func (e *Engine) HandleFrame(id string, frame []byte) error {
	text := string(frame)

	// Classification and identity directives are handled by the
	// registry and never reach state or forwarding logic.
	if token, ok := strings.CutPrefix(text, prefixRole); ok {
		return e.handleClassify(id, token)
	}
	if identity, ok := strings.CutPrefix(text, prefixUser); ok {
		return e.handleBind(id, identity)
	}

	role, err := e.registry.Role(id)
	if err != nil {
		return err
	}

	switch role {
	case RoleDevice:
		e.handleDeviceReport(id, frame)
	case RoleObserver:
		e.handleObserverPayload(id, text)
	case RoleUnknown:
		// Frames before classification carry no meaning yet; drop them
		// rather than killing a connection that may classify next.
		e.logger.Debug("dropping frame from unclassified connection", "conn_id", id)
	}

	return nil
}

func (e *Engine) handleClassify(id, token string) error {
	role, ok := ParseRole(token)
	if !ok {
		e.logger.Warn("unrecognised role token", "conn_id", id, "token", token)
		return ErrProtocol
	}

	if err := e.registry.Classify(id, role); err != nil {
		e.logger.Warn("classification rejected", "conn_id", id, "error", err)
		return err
	}

	e.logger.Info("connection classified", "conn_id", id, "role", role)
	return nil
}

func (e *Engine) handleBind(id, identity string) error {
	if err := e.registry.BindIdentity(id, identity); err != nil {
		e.logger.Warn("identity binding rejected", "conn_id", id, "error", err)
		return err
	}

	e.logger.Info("observer identity bound", "conn_id", id, "user_id", identity)
	return nil
}

// handleDeviceReport applies device telemetry and fans the accepted
// snapshot out to observers. Malformed telemetry is dropped silently: no
// state mutation, no broadcast, connection stays up.
func (e *Engine) handleDeviceReport(id string, frame []byte) {
	report, err := ParseReport(frame)
	if err != nil {
		e.logger.Debug("dropping malformed device report", "conn_id", id, "error", err)
		return
	}

	snapshot, transitioned, err := e.store.ApplyDeviceReport(report)
	if err != nil {
		e.logger.Debug("dropping rejected device report", "conn_id", id, "error", err)
		return
	}

	e.broadcastSnapshot(snapshot)

	if e.archive != nil {
		e.archive.AppendLog("report", string(RoleDevice), "", string(frame))
		e.archive.SetCurrent(snapshot)
	}

	if transitioned && e.notifier != nil {
		e.notifier.Notify("window is now " + string(snapshot.Window))
	}
}

// handleObserverPayload forwards a vocabulary command to every device
// connection. Any other payload is ignored; unrecognised text from an
// observer is not an error.
func (e *Engine) handleObserverPayload(id, text string) {
	cmd, ok := ParseCommand(text)
	if !ok {
		e.logger.Debug("ignoring non-command observer payload", "conn_id", id)
		return
	}

	e.forwardCommand(cmd, string(RoleObserver), e.registry.Identity(id))
}

// InjectCommand feeds an externally sourced command (e.g. from the
// message bus) into the relay as if an observer had issued it. Payloads
// outside the vocabulary are ignored.
func (e *Engine) InjectCommand(text string) {
	cmd, ok := ParseCommand(text)
	if !ok {
		e.logger.Debug("ignoring non-command injected payload")
		return
	}

	e.forwardCommand(cmd, "external", "")
}

// forwardCommand delivers a command verbatim to every writable device
// connection, fire and forget.
func (e *Engine) forwardCommand(cmd, sourceRole, userID string) {
	delivered := 0
	e.registry.ForEachByRole(RoleDevice, func(conn *Conn) {
		if conn.TrySend([]byte(cmd)) {
			delivered++
		}
	})

	if e.archive != nil {
		e.archive.AppendLog("command", sourceRole, userID, cmd)
	}

	e.logger.Debug("command forwarded", "command", cmd, "devices", delivered)
}

// broadcastSnapshot sends the snapshot JSON to every writable observer
// connection. A slow or broken observer is skipped, never waited on.
func (e *Engine) broadcastSnapshot(snapshot Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		e.logger.Error("failed to marshal state snapshot", "error", err)
		return
	}

	sent := 0
	e.registry.ForEachByRole(RoleObserver, func(conn *Conn) {
		if conn.TrySend(data) {
			sent++
		}
	})

	if sent > 0 {
		e.logger.Debug("snapshot broadcast", "observers", sent)
	}
}
