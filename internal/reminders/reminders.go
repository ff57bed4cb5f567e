// Package reminders derives follow-up health from a connection's cadence and last contact.
package reminders

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/facette/natsort"

	"github.com/and161185/connectpro/internal/model"
)

// Status is the follow-up health of a connection.
type Status string

const (
	Overdue Status = "overdue"
	DueSoon Status = "due_soon"
	Healthy Status = "healthy"
)

// dueSoonWindow is how many days before the cadence elapses a connection counts as due soon.
const dueSoonWindow = 14

// Health is the evaluated state of one connection.
type Health struct {
	Status       Status
	DaysSince    int // whole days since last contact, rounded up
	DaysUntilDue int // negative when overdue
	Contacted    bool
}

// Evaluate computes the health of c at now. Never-contacted connections are healthy.
func Evaluate(c model.Connection, now time.Time) Health {
	freq := c.Frequency
	if freq <= 0 {
		freq = model.DefaultFrequency
	}
	if c.LastContact == nil {
		return Health{Status: Healthy, DaysUntilDue: freq}
	}
	diff := now.Sub(*c.LastContact)
	if diff < 0 {
		diff = -diff
	}
	days := int(math.Ceil(diff.Hours() / 24))

	h := Health{DaysSince: days, DaysUntilDue: freq - days, Contacted: true}
	switch {
	case days > freq:
		h.Status = Overdue
	case days > freq-dueSoonWindow:
		h.Status = DueSoon
	default:
		h.Status = Healthy
	}
	return h
}

// Message is a short nudge for overdue and due-soon connections, empty otherwise.
func Message(c model.Connection, h Health) string {
	switch h.Status {
	case Overdue:
		if -h.DaysUntilDue > 30 {
			return fmt.Sprintf("It's been a while. Reconnect with %s?", c.Name)
		}
		return fmt.Sprintf("You wanted to catch up with %s every %d days.", c.Name, c.Frequency)
	case DueSoon:
		return fmt.Sprintf("Follow-up with %s is due in %d days.", c.Name, h.DaysUntilDue)
	}
	return ""
}

// Item pairs a connection with its evaluated health.
type Item struct {
	Connection model.Connection
	Health     Health
}

// Buckets groups connections for the follow-up view.
type Buckets struct {
	Overdue    []Item // cadence elapsed
	Week       []Item // due within 7 days
	Month      []Item // due within 30 days
	NoSchedule []Item // never contacted
}

// Bucket sorts connections into follow-up groups. Connections due later than
// a month out appear in no group. Each group is ordered most urgent first.
func Bucket(conns []model.Connection, now time.Time) Buckets {
	b := Buckets{Overdue: []Item{}, Week: []Item{}, Month: []Item{}, NoSchedule: []Item{}}
	for _, c := range conns {
		h := Evaluate(c, now)
		it := Item{Connection: c, Health: h}
		switch {
		case !h.Contacted:
			b.NoSchedule = append(b.NoSchedule, it)
		case h.Status == Overdue:
			b.Overdue = append(b.Overdue, it)
		case h.DaysUntilDue <= 7:
			b.Week = append(b.Week, it)
		case h.DaysUntilDue <= 30:
			b.Month = append(b.Month, it)
		}
	}
	for _, g := range [][]Item{b.Overdue, b.Week, b.Month} {
		sort.SliceStable(g, func(i, j int) bool { return g[i].Health.DaysUntilDue < g[j].Health.DaysUntilDue })
	}
	// natural order: "Contact 2" before "Contact 10"
	sort.SliceStable(b.NoSchedule, func(i, j int) bool {
		return natsort.Compare(b.NoSchedule[i].Connection.Name, b.NoSchedule[j].Connection.Name)
	})
	return b
}
