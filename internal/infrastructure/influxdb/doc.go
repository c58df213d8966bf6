// Package influxdb records presence history in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes, and health monitoring.
//
// # Measurements
//
//	presence  tags: mac, dev_id, kind, radio, session   fields: home, consider_home
//	radio     tags: radio, session                      fields: attached
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, session)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteRadio("wlan0", true)
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are reported via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
