package celebration

import (
	"fmt"
	"math"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
)

// SourceKind says what produced a request.
type SourceKind string

// Source kinds.
const (
	SourcePayment    SourceKind = "payment"
	SourceSubscriber SourceKind = "subscriber"
	SourceMilestone  SourceKind = "milestone"
	SourceManual     SourceKind = "manual"
	SourceCalendar   SourceKind = "calendar"
)

// Valid reports whether k is a known source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourcePayment, SourceSubscriber, SourceMilestone, SourceManual, SourceCalendar:
		return true
	}
	return false
}

// Request asks for one celebration on one tenant device.
type Request struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	DeviceID    string     `json:"device_id,omitempty"` // empty means the tenant's default device
	Source      SourceKind `json:"source"`
	Amount      float64    `json:"amount"`
	RequestedAt time.Time  `json:"requested_at"`
}

// Validate checks the fields Submit relies on.
func (r Request) Validate() error {
	switch {
	case r.TenantID == "":
		return fmt.Errorf("%w: tenant id is required", ErrInvalidRequest)
	case !r.Source.Valid():
		return fmt.Errorf("%w: unknown source %q", ErrInvalidRequest, r.Source)
	case math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) || r.Amount < 0:
		return fmt.Errorf("%w: amount must be a non-negative number", ErrInvalidRequest)
	}
	return nil
}

// Binding ties a tenant device to the vendor target that drives it.
type Binding struct {
	TenantID string
	DeviceID string
	Target   govee.Target
}

func (b Binding) key() string {
	return b.TenantID + "/" + b.DeviceID
}

// SubmitOutcome is the result of Submit.
type SubmitOutcome string

// Submit outcomes.
const (
	// Accepted: the request will play (now, or right after a restore finishes).
	Accepted SubmitOutcome = "accepted"
	// Dropped: an equal or better celebration is already in progress.
	Dropped SubmitOutcome = "dropped"
	// Superseded: the request replaced a lesser celebration mid-playback.
	Superseded SubmitOutcome = "superseded"
)

// SubmitResult is returned by Submit.
type SubmitResult struct {
	Outcome   SubmitOutcome `json:"outcome"`
	RequestID string        `json:"id"`
	Tier      string        `json:"tier"`
	DeviceID  string        `json:"device_id"`
}

// CancelResult is the result of Cancel.
type CancelResult string

// Cancel results.
const (
	CancelOK      CancelResult = "ok"
	CancelWasIdle CancelResult = "wasIdle"
)
