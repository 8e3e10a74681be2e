package trigger

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/blakeyoung81/Curtain-Lights/internal/celebration"
	"github.com/blakeyoung81/Curtain-Lights/internal/tenant"
)

// SourceCalendar is the calendar source's cursor key.
const SourceCalendar = "calendar"

const calendarMaxResults = 50

// CalendarSource polls a Google Calendar v3 events list for events starting
// within the lookahead window. Each new event yields one request.
type CalendarSource struct {
	cfg       HTTPConfig
	lookahead time.Duration
}

// NewCalendarSource creates a calendar source.
func NewCalendarSource(cfg HTTPConfig, lookahead time.Duration) *CalendarSource {
	if lookahead <= 0 {
		lookahead = 10 * time.Minute
	}
	return &CalendarSource{cfg: cfg.withDefaults(), lookahead: lookahead}
}

// Name implements Source.
func (s *CalendarSource) Name() string { return SourceCalendar }

// Enabled implements Source.
func (s *CalendarSource) Enabled(t tenant.Tenant) bool {
	return t.Calendar.Enabled && t.Calendar.AccessToken != ""
}

type calendarEvent struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Summary string `json:"summary"`
	Start   struct {
		DateTime string `json:"dateTime"`
		Date     string `json:"date"`
	} `json:"start"`

	startsAt time.Time
}

type calendarEvents struct {
	Items []calendarEvent `json:"items"`
}

// Poll implements Source. Events are ordered by (start, id) and only those
// past the cursor's high-water mark are returned. All-day events are skipped.
func (s *CalendarSource) Poll(ctx context.Context, t tenant.Tenant, cur Cursor, _ bool) (PollResult, error) {
	now := s.cfg.Now()

	q := url.Values{}
	q.Set("timeMin", now.UTC().Format(time.RFC3339))
	q.Set("timeMax", now.Add(s.lookahead).UTC().Format(time.RFC3339))
	q.Set("singleEvents", "true")
	q.Set("orderBy", "startTime")
	q.Set("maxResults", fmt.Sprint(calendarMaxResults))
	endpoint := strings.TrimRight(s.cfg.BaseURL, "/") +
		"/calendars/" + url.PathEscape(t.Calendar.CalendarID) + "/events?" + q.Encode()

	var resp calendarEvents
	if err := getJSON(ctx, s.cfg.HTTPClient, endpoint, t.Calendar.AccessToken, &resp); err != nil {
		return PollResult{}, err
	}

	var fresh []calendarEvent
	for _, ev := range resp.Items {
		if ev.ID == "" || ev.Status == "cancelled" || ev.Start.DateTime == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, ev.Start.DateTime)
		if err != nil {
			continue
		}
		ev.startsAt = start
		if !afterMark(start, ev.ID, cur) {
			continue
		}
		fresh = append(fresh, ev)
	}
	sort.Slice(fresh, func(i, j int) bool {
		if !fresh[i].startsAt.Equal(fresh[j].startsAt) {
			return fresh[i].startsAt.Before(fresh[j].startsAt)
		}
		return fresh[i].ID < fresh[j].ID
	})

	next := cur
	next.TenantID, next.Source, next.LastPolledAt = t.ID, SourceCalendar, now

	result := PollResult{}
	for _, ev := range fresh {
		next.LastEventAt, next.LastEventID = ev.startsAt, ev.ID
		result.Items = append(result.Items, Item{
			Request: celebration.Request{
				ID:          "calendar-" + ev.ID,
				TenantID:    t.ID,
				Source:      celebration.SourceCalendar,
				Amount:      t.Calendar.Amount,
				RequestedAt: now,
			},
			Cursor: next,
		})
	}
	result.Cursor = next
	return result, nil
}

// afterMark reports whether (start, id) sorts after the cursor's mark.
func afterMark(start time.Time, id string, cur Cursor) bool {
	if cur.LastEventAt.IsZero() {
		return true
	}
	if start.Equal(cur.LastEventAt) {
		return id > cur.LastEventID
	}
	return start.After(cur.LastEventAt)
}
