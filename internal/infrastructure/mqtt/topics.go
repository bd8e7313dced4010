package mqtt

import "fmt"

// Topic prefixes for the Casement MQTT hierarchy.
//
// Scheme: casement/{category}[/{detail}]
const (
	// TopicPrefix is the base for all Casement topics.
	TopicPrefix = "casement"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "casement/system"
)

// Topics provides builders for Casement MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// SystemStatus returns the system status topic carrying online/offline
// payloads (including the LWT crash status).
//
// Example: casement/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// StateCurrent returns the topic where the relay mirrors every accepted
// device snapshot for external consumers.
//
// Example: casement/state/current
func (Topics) StateCurrent() string {
	return fmt.Sprintf("%s/state/current", TopicPrefix)
}

// Notify returns the default topic for window-transition notifications.
//
// Example: casement/notify
func (Topics) Notify() string {
	return fmt.Sprintf("%s/notify", TopicPrefix)
}

// Command returns the topic on which external automations may inject
// window commands (Open, Close, Auto) for forwarding to the device.
//
// Example: casement/command
func (Topics) Command() string {
	return fmt.Sprintf("%s/command", TopicPrefix)
}
