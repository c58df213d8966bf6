// Package homeassistant reports device presence to Home Assistant.
//
// Each transition becomes one call to the device_tracker.see service:
//
//	POST /api/services/device_tracker/see
//	Authorization: Bearer <long-lived access token>
//
//	{"mac":"aa:bb:cc:dd:ee:ff","dev_id":"laptop","host_name":"laptop.lan",
//	 "source_type":"router","consider_home":180}
//
// consider_home tells Home Assistant how long to keep the device home
// without hearing from hapt again. On arrival it is long, on departure
// short, so a device that roams away and back within the window never
// flaps to away.
package homeassistant
