package celebration

import "time"

// State is where a device's celebration state machine currently is.
type State string

// Machine states.
const (
	StateIdle      State = "idle"
	StateCapturing State = "capturing"
	StatePlaying   State = "playing"
	StateRestoring State = "restoring"
)

// Status is what getCelebrationStatus reports for one device.
type Status struct {
	TenantID         string     `json:"tenant_id"`
	DeviceID         string     `json:"device_id"`
	State            State      `json:"state"`
	Tier             string     `json:"tier,omitempty"`
	TierLabel        string     `json:"tier_label,omitempty"`
	RequestID        string     `json:"request_id,omitempty"`
	RemainingSeconds *int       `json:"remainingSeconds,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	Queued           string     `json:"queued,omitempty"` // tier waiting for the restore to finish
	LastError        string     `json:"lastError,omitempty"`
}

// Transition is emitted on every state change.
type Transition struct {
	From   State
	To     State
	Status Status
	At     time.Time
}

// FinishOutcome says why a celebration left the Playing state.
type FinishOutcome string

// Finish outcomes.
const (
	FinishCompleted  FinishOutcome = "completed"
	FinishSuperseded FinishOutcome = "superseded"
	FinishCancelled  FinishOutcome = "cancelled"
	FinishShutdown   FinishOutcome = "shutdown"
)

// Report summarises one finished celebration.
type Report struct {
	Binding  Binding
	Request  Request
	Tier     Tier
	Outcome  FinishOutcome
	Played   time.Duration
	Restored bool // false when superseded (no restore issued) or the restore failed
	Err      error
}

// Observer receives engine events. Calls happen outside engine locks but may
// come from several goroutines at once.
type Observer interface {
	Submitted(req Request, tier Tier, outcome SubmitOutcome)
	Transitioned(t Transition)
	Finished(r Report)
}

// BaseObserver implements Observer with no-ops, for embedding.
type BaseObserver struct{}

// Submitted implements Observer.
func (BaseObserver) Submitted(Request, Tier, SubmitOutcome) {}

// Transitioned implements Observer.
func (BaseObserver) Transitioned(Transition) {}

// Finished implements Observer.
func (BaseObserver) Finished(Report) {}
