// Package config loads the Curtain Lights YAML configuration.
//
// Load applies defaults, then the file, then CURTAIN_* environment
// variables, and finally Validate, which reports every problem at once.
// The Govee API key, JWT secret, MQTT password and InfluxDB token belong in
// the environment (CURTAIN_GOVEE_API_KEY, CURTAIN_JWT_SECRET, ...), not in
// the file.
//
// Durations such as govee.rate_limit.window or celebration.restore_timeout
// use Go duration syntax ("1m", "250ms").
package config
