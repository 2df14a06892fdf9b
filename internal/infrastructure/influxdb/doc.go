// Package influxdb provides InfluxDB connectivity for backlightd.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, metric writing, and health monitoring.
//
// Every brightness change and capture result becomes one device_metrics
// point tagged with the device and the measurement name:
//
//	device_metrics,device_id=intel_backlight,measurement=brightness value=60,max=120i,ratio=0.5
//	device_metrics,device_id=video0,measurement=capture_average value=0.42,frames=10i,duration_ms=1500i
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteBrightness("intel_backlight", 60, 120, time.Now())
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; asynchronous write errors are delivered to the SetOnError
// callback.
package influxdb
