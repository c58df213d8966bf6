// Package mqtt publishes hapt presence state to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained presence state per device
//   - Retained attach state per radio
//   - Last Will and Testament (LWT) for offline detection
//   - Replay of the newest retained payload per topic after a reconnect
//
// # Topics
//
//	hapt/presence/<dev_id>       {"mac","dev_id","host_name","state":"home|not_home",...}
//	hapt/radio/<radio>/status    {"radio","status":"attached|detached",...}
//	hapt/system/status           {"status":"online|offline","client_id","session",...}
//
// MQTT is an optional secondary sink. Home Assistant remains the primary
// notification target, and a broker outage never affects presence tracking.
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT, sessionID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishPresence(mqtt.PresenceMessage{
//	    MAC:      "aa:bb:cc:dd:ee:ff",
//	    DeviceID: "laptop",
//	    State:    mqtt.StateHome,
//	})
package mqtt
