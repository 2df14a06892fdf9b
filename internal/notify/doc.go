// Package notify fans brightness changes and capture results out to the
// optional sinks: MQTT state, InfluxDB telemetry and the SQLite audit
// trail.
//
// Records are queued and delivered by a single goroutine so a slow broker
// never stalls the request loop. Delivery is best effort: a failing sink
// is logged and the write it describes still succeeds. When the queue is
// full the record is dropped and counted.
//
//	fan := notify.NewFanout(notify.DefaultQueueSize)
//	fan.Add(notify.NewMQTTSink(mqttClient))
//	fan.Start(ctx)
//	defer fan.Close()
//
//	accessor := brightness.NewAccessor(fan)
package notify
