// Package mqtt connects the bridge to an MQTT broker.
//
// The bridge publishes each appliance's merged state and availability as
// retained messages, accepts command requests on a per-appliance command
// topic, and publishes the outcome of every command. A retained bridge
// status topic is kept online while connected and flipped to offline by the
// broker's Last Will if the process dies.
//
// # Topics
//
// See Topics for the full layout. With the default "hon" prefix:
//
//	hon/status
//	hon/state/{mac}
//	hon/availability/{mac}
//	hon/command/{mac}/{startProgram|settings|stopProgram}
//	hon/result/{mac}
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        mac, command, _ := topics.ParseCommand(topic)
//	        return handle(mac, command, payload)
//	    })
//
//	client.PublishJSON(topics.State(mac), snapshot, true)
//
// Use TLS (cfg.Broker.TLS) for any broker that is not on the same host.
package mqtt
