// Package celebration runs the interrupt-and-restore state machine that turns
// a triggering event into a short light show and then puts the light back.
//
// Each tenant device has one machine:
//
//	Idle ──submit──▶ Capturing ──▶ Playing ──▶ Restoring ──▶ Idle
//	                     ▲             │            │
//	                     └─supersede───┘            └── queued request
//
// Capturing snapshots the device's last known state. Playing walks the
// tier's keyframes until the tier duration elapses. Restoring re-applies the
// snapshot, always, including after a cancel or shutdown.
//
// A request for a strictly higher tier supersedes the running one. The
// snapshot carries over, so the final restore returns the light to how it
// looked before the first celebration. Equal or lower tiers are dropped. A
// request that arrives while a restore is in flight waits for it and then
// starts from a fresh capture.
//
// Tiers map an amount to a profile. Thresholds are inclusive: an amount equal
// to a threshold belongs to that tier.
package celebration
