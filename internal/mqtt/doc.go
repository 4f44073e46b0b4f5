// Package mqtt publishes agent run telemetry to an MQTT broker. Each
// finished run and each tool call is published as a JSON message, and
// a retained daily stats message is refreshed once a minute.
//
// The connection is managed by Eclipse Paho v2's [autopaho] package,
// which reconnects automatically. A will message flips the retained
// availability topic to "offline" on unexpected disconnects; a birth
// message sets it back to "online" on every (re-)connect.
package mqtt
