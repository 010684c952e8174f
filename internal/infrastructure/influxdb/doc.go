// Package influxdb writes Puck Central telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library. Three measurements
// are written:
//   - gatt_session: one point per finished discovery session
//   - trigger_dispatch: one point per fired trigger
//   - beacon_transition: one point per beacon entering or leaving range
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDispatch(influxdb.DispatchSample{PuckID: id, Trigger: "enter-zone", Rules: 2})
//
// Writes are non-blocking and batched (batch_size, flush_interval). Batch
// errors arrive through SetOnError.
package influxdb
