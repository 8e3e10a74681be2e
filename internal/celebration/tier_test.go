package celebration

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/blakeyoung81/Curtain-Lights/internal/govee"
)

func TestDefaultTiers(t *testing.T) {
	Convey("Given the default tier table", t, func() {
		table := DefaultTiers()

		Convey("Amounts resolve to the highest threshold they meet", func() {
			cases := []struct {
				amount float64
				want   string
			}{
				{0, "mini"},
				{19.99, "mini"},
				{20, "standard"},
				{25, "standard"},
				{49.99, "standard"},
				{50, "major"},
				{99.99, "major"},
				{100, "premium"},
				{10000, "premium"},
			}
			for _, c := range cases {
				tier, err := table.Resolve(c.amount)
				So(err, ShouldBeNil)
				So(tier.Name, ShouldEqual, c.want)
			}
		})

		Convey("A standard tier plays for fifteen seconds", func() {
			tier, err := table.Resolve(25)
			So(err, ShouldBeNil)
			So(tier.Duration, ShouldEqual, 15*time.Second)
			So(tier.Label, ShouldEqual, "$20–49")
		})

		Convey("Ranks increase with threshold", func() {
			tiers := table.Tiers()
			So(len(tiers), ShouldEqual, 4)
			for i := 1; i < len(tiers); i++ {
				So(tiers[i].Rank(), ShouldBeGreaterThan, tiers[i-1].Rank())
				So(tiers[i].Threshold, ShouldBeGreaterThan, tiers[i-1].Threshold)
			}
		})

		Convey("Lookup finds tiers by name", func() {
			tier, ok := table.Lookup("major")
			So(ok, ShouldBeTrue)
			So(tier.Threshold, ShouldEqual, 50)

			_, ok = table.Lookup("nope")
			So(ok, ShouldBeFalse)
		})
	})
}

func TestTierTable_Resolve_BelowLowest(t *testing.T) {
	Convey("Given a table whose lowest threshold is 10", t, func() {
		table, err := NewTierTable([]Tier{{
			Name: "only", Threshold: 10, Duration: time.Second,
			Keyframes: []Keyframe{{Color: govee.White, Brightness: 50, Hold: time.Second}},
		}})
		So(err, ShouldBeNil)

		Convey("An amount of 5 is rejected", func() {
			_, err := table.Resolve(5)
			So(errors.Is(err, ErrInvalidRequest), ShouldBeTrue)
		})
	})
}

func TestNewTierTable_Invalid(t *testing.T) {
	kf := []Keyframe{{Color: govee.White, Brightness: 50, Hold: time.Second}}
	tests := []struct {
		name  string
		tiers []Tier
	}{
		{"empty", nil},
		{"missing name", []Tier{{Duration: time.Second, Keyframes: kf}}},
		{"zero duration", []Tier{{Name: "a", Keyframes: kf}}},
		{"no keyframes", []Tier{{Name: "a", Duration: time.Second}}},
		{"zero hold", []Tier{{Name: "a", Duration: time.Second, Keyframes: []Keyframe{{Brightness: 50}}}}},
		{"brightness out of range", []Tier{{Name: "a", Duration: time.Second, Keyframes: []Keyframe{{Brightness: 101, Hold: time.Second}}}}},
		{"shared threshold", []Tier{
			{Name: "a", Duration: time.Second, Keyframes: kf},
			{Name: "b", Duration: time.Second, Keyframes: kf},
		}},
		{"duplicate name", []Tier{
			{Name: "a", Duration: time.Second, Keyframes: kf},
			{Name: "a", Threshold: 5, Duration: time.Second, Keyframes: kf},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTierTable(tt.tiers); !errors.Is(err, ErrInvalidTier) {
				t.Errorf("NewTierTable() error = %v, want ErrInvalidTier", err)
			}
		})
	}
}

func TestTier_Schedule(t *testing.T) {
	Convey("Given the mini tier (10s of green 2s, white 1s)", t, func() {
		tier, _ := DefaultTiers().Lookup("mini")
		steps := tier.Schedule()

		Convey("Keyframes loop back to back", func() {
			So(len(steps), ShouldEqual, 7)
			So(steps[0].Color, ShouldResemble, govee.Green)
			So(steps[0].At, ShouldEqual, time.Duration(0))
			So(steps[1].Color, ShouldResemble, govee.White)
			So(steps[1].At, ShouldEqual, 2*time.Second)
			So(steps[2].At, ShouldEqual, 3*time.Second)
		})

		Convey("The final hold is truncated to end at the duration", func() {
			last := steps[len(steps)-1]
			So(last.At, ShouldEqual, 9*time.Second)
			So(last.Hold, ShouldEqual, time.Second)
			So(last.Color, ShouldResemble, govee.Green)
			So(last.At+last.Hold, ShouldEqual, tier.Duration)
		})
	})

	Convey("Given the premium tier", t, func() {
		tier, _ := DefaultTiers().Lookup("premium")
		steps := tier.Schedule()

		Convey("The schedule covers exactly thirty seconds", func() {
			var total time.Duration
			for _, s := range steps {
				total += s.Hold
			}
			So(total, ShouldEqual, 30*time.Second)
			So(steps[0].Color, ShouldResemble, gold)
			So(steps[1].Color, ShouldResemble, purple)
		})
	})
}
