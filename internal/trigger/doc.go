// Package trigger turns external events into celebration requests.
//
// The Scheduler polls per-tenant sources (calendar events, subscriber
// counts) on a fixed interval, fanning out with a concurrency cap. Progress
// is kept in per-tenant, per-source cursors stored in SQLite, and a cursor
// only moves once the request it covers has been submitted. A failed fetch
// skips the tick and leaves the cursor untouched.
//
// The PushReceiver handles events that arrive already verified (payment
// webhooks over HTTP or MQTT) and submits them immediately, de-duplicating by
// event id.
package trigger
