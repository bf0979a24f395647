// Package mqtt publishes lexhost status over MQTT.
//
// The client is optional: it is only connected when mqtt.enabled is set.
// It announces the process on <prefix>/system/status (with a Last Will so
// a crash is reported as offline), publishes the provisioning state as a
// retained message on <prefix>/provisioning/status, and accepts commands
// such as "retry" on <prefix>/command/provisioning.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, version, log)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishStatus(status)
//	client.HandleCommands(func(cmd mqtt.Command) error { ... })
package mqtt
