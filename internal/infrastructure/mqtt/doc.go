// Package mqtt provides MQTT client connectivity for backlightd.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// MQTT is optional. When enabled, the daemon publishes the retained state of
// every backlight it changes and, if commands are enabled, accepts
// brightness commands that are fed into the same serial request loop as
// D-Bus calls.
//
// # Topics
//
//	<prefix>/status            online/offline (retained, LWT)
//	<prefix>/state/<device>    {"brightness":60,"max":100,...} (retained)
//	<prefix>/command/<device>  {"brightness":60}
//	<prefix>/error/<device>    {"kind":"invalid_argument","message":"..."}
//	<prefix>/capture/<device>  {"average":0.42,"frames":10}
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Command topics should be write-restricted by the broker ACL; the
//     daemon performs no authentication of its own
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishJSON(client.Topics().State("intel_backlight"), state, true)
package mqtt
