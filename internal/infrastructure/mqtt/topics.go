package mqtt

import "fmt"

// TopicRoot is the root of every Gray Logic topic.
const TopicRoot = "graylogic"

// Protocol is the protocol segment used by the media bridge.
const Protocol = "ecp"

// Topics builds the media bridge's MQTT topics. All bridge topics use the
// flat scheme graylogic/{category}/{protocol}/{device_id}[/{event}].
//
//	topics := mqtt.Topics{}
//	topics.State("X1234", "power")
//	// Returns: "graylogic/state/ecp/X1234/power"
type Topics struct{}

// State returns the topic for one capability event of a device.
func (Topics) State(deviceID, event string) string {
	return fmt.Sprintf("%s/state/%s/%s/%s", TopicRoot, Protocol, deviceID, event)
}

// Command returns the topic a controller publishes device commands on.
func (Topics) Command(deviceID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicRoot, Protocol, deviceID)
}

// AllCommands matches commands for every media device.
//
// Pattern: graylogic/command/ecp/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/%s/+", TopicRoot, Protocol)
}

// Ack returns the topic for command acknowledgements.
func (Topics) Ack(deviceID string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicRoot, Protocol, deviceID)
}

// Health returns the bridge health topic. It also carries the LWT.
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicRoot, Protocol)
}

// Discovery returns the topic new devices are announced on.
func (Topics) Discovery() string {
	return fmt.Sprintf("%s/discovery/%s", TopicRoot, Protocol)
}

// DeviceIDFromCommandTopic extracts the device ID from a command topic.
// It returns "" when the topic does not match Command's layout.
func (Topics) DeviceIDFromCommandTopic(topic string) string {
	prefix := fmt.Sprintf("%s/command/%s/", TopicRoot, Protocol)
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return ""
	}
	id := topic[len(prefix):]
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return ""
		}
	}
	return id
}
