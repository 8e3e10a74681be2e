// Package telemetry adapts celebration engine and device client events to
// Prometheus, InfluxDB and retained MQTT status topics.
package telemetry
