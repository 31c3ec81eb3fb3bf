// Package mqtt provides MQTT connectivity for the media bridge.
//
// The bridge publishes diff-gated capability events, command
// acknowledgements, discovery announcements and periodic health on the
// Gray Logic bus, and receives device commands from it:
//
//	graylogic/state/ecp/{device_id}/{event}   retained state (key presses are not retained)
//	graylogic/command/ecp/{device_id}         inbound commands
//	graylogic/ack/ecp/{device_id}             command acknowledgements
//	graylogic/discovery/ecp                   newly registered devices
//	graylogic/health/ecp                      bridge health and LWT
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1, handler)
package mqtt
