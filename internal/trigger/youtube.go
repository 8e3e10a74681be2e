package trigger

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/tenant"
)

// SourceSubscribers is the subscriber source's cursor key.
const SourceSubscribers = "youtube"

// Milestone is a subscriber count worth a bigger celebration.
type Milestone struct {
	Subscribers int64
	Amount      float64
}

// Milestones in ascending order.
var Milestones = []Milestone{
	{100, 5},
	{500, 10},
	{1_000, 15},
	{5_000, 25},
	{10_000, 50},
	{50_000, 75},
	{100_000, 100},
	{500_000, 200},
	{1_000_000, 500},
}

// SubscriberSource polls YouTube channel statistics. The first poll only
// records a baseline. Later increases yield one request: a milestone if any
// was crossed, otherwise the gain itself as the amount.
type SubscriberSource struct {
	cfg HTTPConfig
}

// NewSubscriberSource creates a subscriber source.
func NewSubscriberSource(cfg HTTPConfig) *SubscriberSource {
	return &SubscriberSource{cfg: cfg.withDefaults()}
}

// Name implements Source.
func (s *SubscriberSource) Name() string { return SourceSubscribers }

// Enabled implements Source.
func (s *SubscriberSource) Enabled(t tenant.Tenant) bool {
	return t.YouTube.Enabled && t.YouTube.AccessToken != ""
}

type channelList struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			SubscriberCount string `json:"subscriberCount"`
		} `json:"statistics"`
	} `json:"items"`
}

// Poll implements Source.
func (s *SubscriberSource) Poll(ctx context.Context, t tenant.Tenant, cur Cursor, hasCursor bool) (PollResult, error) {
	now := s.cfg.Now()

	q := url.Values{}
	q.Set("part", "statistics")
	if t.YouTube.ChannelID == "mine" {
		q.Set("mine", "true")
	} else {
		q.Set("id", t.YouTube.ChannelID)
	}
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") + "/channels?" + q.Encode()

	var resp channelList
	if err := getJSON(ctx, s.cfg.HTTPClient, endpoint, t.YouTube.AccessToken, &resp); err != nil {
		return PollResult{}, err
	}
	if len(resp.Items) == 0 {
		return PollResult{}, fmt.Errorf("%w: channel %q not found", ErrFetchFailed, t.YouTube.ChannelID)
	}
	count, err := strconv.ParseInt(resp.Items[0].Statistics.SubscriberCount, 10, 64)
	if err != nil {
		return PollResult{}, fmt.Errorf("%w: subscriber count: %w", ErrFetchFailed, err)
	}

	next := cur
	next.TenantID, next.Source, next.LastPolledAt = t.ID, SourceSubscribers, now

	// Only a new high counts, so unsubscribes followed by resubscribes
	// never celebrate the same number twice.
	if !hasCursor || count <= cur.LastCount {
		if !hasCursor {
			next.LastCount = count
		}
		return PollResult{Cursor: next}, nil
	}

	next.LastCount = count
	req := celebration.Request{
		ID:          fmt.Sprintf("subscribers-%s-%d", t.ID, count),
		TenantID:    t.ID,
		Source:      celebration.SourceSubscriber,
		Amount:      float64(count - cur.LastCount),
		RequestedAt: now,
	}
	if m, ok := crossedMilestone(cur.LastCount, count); ok {
		req.Source = celebration.SourceMilestone
		req.Amount = m.Amount
	}

	return PollResult{
		Items:  []Item{{Request: req, Cursor: next}},
		Cursor: next,
	}, nil
}

// crossedMilestone returns the highest milestone in (from, to].
func crossedMilestone(from, to int64) (Milestone, bool) {
	for i := len(Milestones) - 1; i >= 0; i-- {
		m := Milestones[i]
		if from < m.Subscribers && m.Subscribers <= to {
			return m, true
		}
	}
	return Milestone{}, false
}
