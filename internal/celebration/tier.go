package celebration

import (
	"fmt"
	"sort"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
)

// Keyframe is one color/brightness instruction held for Hold.
type Keyframe struct {
	Color      govee.Color   `json:"color"`
	Brightness int           `json:"brightness"`
	Hold       time.Duration `json:"hold"`
}

// Tier is a named celebration profile. Requests whose amount meets
// Threshold (and no higher tier's threshold) play Keyframes for Duration.
type Tier struct {
	Name      string        `json:"name"`
	Label     string        `json:"label"`
	Threshold float64       `json:"threshold"`
	Duration  time.Duration `json:"duration"`
	Keyframes []Keyframe    `json:"keyframes"`

	rank int
}

// Rank orders tiers: a higher rank is a better celebration.
func (t Tier) Rank() int {
	return t.rank
}

// Step is one keyframe placed on the playback timeline.
type Step struct {
	Keyframe
	At time.Duration // offset from playback start
}

// Schedule lays the keyframes back to back, looping until Duration and
// truncating the final hold so the last step ends exactly at Duration.
func (t Tier) Schedule() []Step {
	var (
		steps []Step
		at    time.Duration
		cycle time.Duration
	)
	for _, kf := range t.Keyframes {
		cycle += max(kf.Hold, 0)
	}
	if cycle == 0 {
		return nil
	}

	for at < t.Duration {
		for _, kf := range t.Keyframes {
			if at >= t.Duration {
				break
			}
			if remaining := t.Duration - at; kf.Hold > remaining {
				kf.Hold = remaining
			}
			steps = append(steps, Step{Keyframe: kf, At: at})
			at += kf.Hold
		}
	}
	return steps
}

var (
	gold   = govee.Color{R: 255, G: 215, B: 0}
	purple = govee.Color{R: 138, G: 43, B: 226}
	yellow = govee.Color{R: 255, G: 255, B: 0}
)

// DefaultTiers returns the built-in four-tier table.
func DefaultTiers() *TierTable {
	table, err := NewTierTable([]Tier{
		{
			Name: "mini", Label: "$0–19", Threshold: 0, Duration: 10 * time.Second,
			Keyframes: []Keyframe{
				{Color: govee.Green, Brightness: 60, Hold: 2 * time.Second},
				{Color: govee.White, Brightness: 60, Hold: time.Second},
			},
		},
		{
			Name: "standard", Label: "$20–49", Threshold: 20, Duration: 15 * time.Second,
			Keyframes: []Keyframe{
				{Color: govee.Green, Brightness: 80, Hold: 3 * time.Second},
				{Color: govee.White, Brightness: 80, Hold: time.Second},
			},
		},
		{
			Name: "major", Label: "$50–99", Threshold: 50, Duration: 20 * time.Second,
			Keyframes: []Keyframe{
				{Color: govee.Green, Brightness: 100, Hold: 2 * time.Second},
				{Color: yellow, Brightness: 100, Hold: 2 * time.Second},
				{Color: govee.White, Brightness: 100, Hold: time.Second},
			},
		},
		{
			Name: "premium", Label: "$100+", Threshold: 100, Duration: 30 * time.Second,
			Keyframes: []Keyframe{
				{Color: gold, Brightness: 100, Hold: 2 * time.Second},
				{Color: purple, Brightness: 100, Hold: 2 * time.Second},
				{Color: govee.White, Brightness: 100, Hold: time.Second},
				{Color: gold, Brightness: 100, Hold: 2 * time.Second},
			},
		},
	})
	if err != nil {
		panic(err) // static table
	}
	return table
}

// TierTable is an immutable threshold table, sorted by threshold.
type TierTable struct {
	tiers []Tier
}

// NewTierTable validates and sorts tiers.
func NewTierTable(tiers []Tier) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: no tiers", ErrInvalidTier)
	}

	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Threshold < sorted[j].Threshold })

	names := make(map[string]struct{}, len(sorted))
	for i := range sorted {
		t := &sorted[i]
		if err := validateTier(*t); err != nil {
			return nil, err
		}
		if i > 0 && t.Threshold == sorted[i-1].Threshold {
			return nil, fmt.Errorf("%w: tiers %q and %q share threshold %v",
				ErrInvalidTier, sorted[i-1].Name, t.Name, t.Threshold)
		}
		if _, dup := names[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidTier, t.Name)
		}
		names[t.Name] = struct{}{}

		t.Keyframes = append([]Keyframe(nil), t.Keyframes...)
		t.rank = i
	}
	return &TierTable{tiers: sorted}, nil
}

func validateTier(t Tier) error {
	switch {
	case t.Name == "":
		return fmt.Errorf("%w: tier name is required", ErrInvalidTier)
	case t.Duration <= 0:
		return fmt.Errorf("%w: tier %q needs a positive duration", ErrInvalidTier, t.Name)
	case len(t.Keyframes) == 0:
		return fmt.Errorf("%w: tier %q has no keyframes", ErrInvalidTier, t.Name)
	}
	for i, kf := range t.Keyframes {
		if kf.Hold <= 0 {
			return fmt.Errorf("%w: tier %q keyframe %d needs a positive hold", ErrInvalidTier, t.Name, i)
		}
		if kf.Brightness < govee.MinBrightness || kf.Brightness > govee.MaxBrightness {
			return fmt.Errorf("%w: tier %q keyframe %d brightness %d", ErrInvalidTier, t.Name, i, kf.Brightness)
		}
	}
	return nil
}

// Resolve returns the highest tier whose threshold amount meets.
// An amount equal to a threshold belongs to that (higher) tier.
func (tt *TierTable) Resolve(amount float64) (Tier, error) {
	idx := sort.Search(len(tt.tiers), func(i int) bool { return tt.tiers[i].Threshold > amount }) - 1
	if idx < 0 {
		return Tier{}, fmt.Errorf("%w: amount %v is below the lowest tier", ErrInvalidRequest, amount)
	}
	return tt.tiers[idx], nil
}

// Lookup finds a tier by name.
func (tt *TierTable) Lookup(name string) (Tier, bool) {
	for _, t := range tt.tiers {
		if t.Name == name {
			return t, true
		}
	}
	return Tier{}, false
}

// Tiers returns the table in ascending threshold order.
func (tt *TierTable) Tiers() []Tier {
	out := make([]Tier, len(tt.tiers))
	copy(out, tt.tiers)
	return out
}
