// Package process supervises the BLE bridge subprocess.
//
// The bridge owns the Bluetooth adapter and talks to Puck Central over MQTT.
// When ble.bridge.managed is set, Puck Central starts it, restarts it with
// exponential backoff when it dies, and kills it when its health watchdog
// fails repeatedly.
//
// Features:
//   - Start/stop with SIGTERM to the process group, then SIGKILL
//   - Restart on failure with backoff, reset after a stable run
//   - Health watchdog driven by a caller-supplied check
//   - Line-based capture of the bridge's stdout/stderr into the logger
//
// Example usage:
//
//	mgr := process.NewManager(process.BridgeConfig(cfg.BLE, cfg.MQTT))
//	mgr.SetLogger(log)
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
package process
