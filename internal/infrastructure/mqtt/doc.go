// Package mqtt provides MQTT client connectivity for Puck Central.
//
// MQTT is the bus between Puck Central and the BLE bridge that owns the
// radio. The bridge reports beacon sightings and GATT events; Puck Central
// sends GATT commands back and publishes notifications for other systems.
//
//	Puck Central ↔ MQTT Broker ↔ BLE bridge (hci0)
//	                    ↑
//	        notify / publish actuator consumers
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Usage
//
//	topics := mqtt.NewTopics(cfg.BLE.TopicPrefix)
//	client, err := mqtt.Connect(cfg.MQTT, topics)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.AllBLEEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        return bridge.HandleEvent(topic, payload)
//	    })
package mqtt
