package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every backlightd topic.
const DefaultTopicPrefix = "backlightd"

// Topics provides builders for backlightd MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{Prefix: "backlightd"}
//	stateTopic := topics.State("intel_backlight")
//	// Returns: "backlightd/state/intel_backlight"
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// State returns the retained state topic of a backlight device.
//
// Example: backlightd/state/intel_backlight
func (t Topics) State(device string) string {
	return fmt.Sprintf("%s/state/%s", t.prefix(), device)
}

// Command returns the command topic of a backlight device. An empty device
// selects the first device.
//
// Example: backlightd/command/intel_backlight
func (t Topics) Command(device string) string {
	return fmt.Sprintf("%s/command/%s", t.prefix(), device)
}

// Error returns the topic on which failed commands are reported.
//
// Example: backlightd/error/intel_backlight
func (t Topics) Error(device string) string {
	return fmt.Sprintf("%s/error/%s", t.prefix(), device)
}

// Capture returns the topic on which capture results are published.
//
// Example: backlightd/capture/video0
func (t Topics) Capture(device string) string {
	return fmt.Sprintf("%s/capture/%s", t.prefix(), device)
}

// Status returns the daemon status topic (online/offline, LWT).
//
// Example: backlightd/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/status", t.prefix())
}

// AllCommands returns a pattern matching every device command topic.
//
// Pattern: backlightd/command/+
func (t Topics) AllCommands() string {
	return t.Command("+")
}

// AllStates returns a pattern matching every device state topic.
//
// Pattern: backlightd/state/+
func (t Topics) AllStates() string {
	return t.State("+")
}

// CommandDevice extracts the device name from a command topic. ok is false
// if topic is not a command topic under this prefix.
func (t Topics) CommandDevice(topic string) (device string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/command/")
	if !found || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
