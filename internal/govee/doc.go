// Package govee is the device client for Govee Wi-Fi lights.
//
// It exposes the logical operations a celebration needs (power, color,
// brightness, named pattern) and compiles each one into a single PUT against
// the vendor's v1 control API. Every attempt first takes a token from the
// shared command limiter; transient failures (timeouts, connection resets,
// 5xx, 429) are retried on a fixed backoff schedule, permanent ones (4xx,
// unknown device, bad argument) are returned at once as *CommandError.
//
// The vendor cannot report what a light is showing, so the client keeps a
// cache of the last state it successfully set. Callers treat it as a best
// guess.
package govee
