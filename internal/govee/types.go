package govee

import (
	"fmt"
	"time"
)

// Command names understood by the vendor control endpoint.
const (
	CmdTurn       = "turn"
	CmdColor      = "color"
	CmdBrightness = "brightness"
)

// Brightness bounds accepted by the vendor.
const (
	MinBrightness = 0
	MaxBrightness = 100
)

// Target identifies one physical light. The vendor needs both fields.
type Target struct {
	DeviceID string `json:"device"`
	Model    string `json:"model"`
}

func (t Target) String() string {
	return t.Model + "/" + t.DeviceID
}

// Validate rejects targets the vendor would refuse anyway.
func (t Target) Validate() error {
	if t.DeviceID == "" || t.Model == "" {
		return fmt.Errorf("%w: target requires device id and model", ErrInvalidArgument)
	}
	return nil
}

// Color is an RGB triple, 0–255 per channel.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Common colors.
var (
	White = Color{255, 255, 255}
	Green = Color{0, 255, 0}
)

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Power is the on/off state of a light.
type Power string

// Power values, spelled the way the vendor expects them.
const (
	PowerOn  Power = "on"
	PowerOff Power = "off"
)

// DeviceState is the last known look of a light.
//
// The vendor offers no reliable state feedback, so this is what we last told
// the light to do, not what it is necessarily doing.
type DeviceState struct {
	Power      Power     `json:"power"`
	Color      Color     `json:"color"`
	Brightness int       `json:"brightness"`
	PatternID  *int      `json:"pattern_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SameLook reports whether two states show the same thing, ignoring UpdatedAt.
func (s DeviceState) SameLook(o DeviceState) bool {
	if s.Power != o.Power || s.Color != o.Color || s.Brightness != o.Brightness {
		return false
	}
	switch {
	case s.PatternID == nil && o.PatternID == nil:
		return true
	case s.PatternID == nil || o.PatternID == nil:
		return false
	default:
		return *s.PatternID == *o.PatternID
	}
}

// Device is one entry of the vendor's device listing.
type Device struct {
	DeviceID     string   `json:"device"`
	Model        string   `json:"model"`
	Name         string   `json:"deviceName"`
	Controllable bool     `json:"controllable"`
	Retrievable  bool     `json:"retrievable"`
	SupportCmds  []string `json:"supportCmds"`
}

// Target returns the addressing pair for this device.
func (d Device) Target() Target {
	return Target{DeviceID: d.DeviceID, Model: d.Model}
}

// controlRequest is the body of PUT /v1/devices/control.
type controlRequest struct {
	Device string     `json:"device"`
	Model  string     `json:"model"`
	Cmd    controlCmd `json:"cmd"`
}

type controlCmd struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// vendorResponse is the envelope every vendor endpoint returns.
type vendorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Devices []Device `json:"devices"`
	} `json:"data"`
}
