// Package mqtt connects Curtain Lights to an MQTT broker.
//
// The broker is an optional side channel. The service publishes a retained
// status document per device while a celebration runs, so dashboards and
// home automation can follow along, and it subscribes to a per-tenant push
// topic so payment webhooks relayed over MQTT can trigger celebrations.
//
//	Curtain Lights ↔ MQTT Broker ↔ dashboards / webhook relays
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) for any broker not on localhost
//   - Credentials come from CURTAIN_MQTT_USERNAME / CURTAIN_MQTT_PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(client.Topics().AllPush(), 1, handler)
package mqtt
