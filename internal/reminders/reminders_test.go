package reminders

import (
	"testing"
	"time"

	"github.com/and161185/connectpro/internal/model"
)

var now = time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

func conn(name string, freq int, daysAgo float64) model.Connection {
	c := model.Connection{Name: name, Frequency: freq}
	if daysAgo >= 0 {
		at := now.Add(-time.Duration(daysAgo * 24 * float64(time.Hour)))
		c.LastContact = &at
	}
	return c
}

func TestEvaluate_Thresholds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		c       model.Connection
		want    Status
		since   int
		untilDu int
	}{
		{"never contacted", conn("a", 30, -1), Healthy, 0, 30},
		{"fresh", conn("b", 30, 1), Healthy, 1, 29},
		{"partial day rounds up", conn("c", 30, 0.5), Healthy, 1, 29},
		{"edge of due soon window", conn("d", 30, 16), DueSoon, 16, 14},
		{"just before window", conn("e", 30, 15.5), DueSoon, 16, 14},
		{"exactly at cadence", conn("f", 30, 30), DueSoon, 30, 0},
		{"past cadence", conn("g", 30, 31), Overdue, 31, -1},
		{"zero frequency falls back to default", conn("h", 0, 80), DueSoon, 80, 10},
	}
	for _, tc := range cases {
		h := Evaluate(tc.c, now)
		if h.Status != tc.want || h.DaysSince != tc.since || h.DaysUntilDue != tc.untilDu {
			t.Fatalf("%s: got %+v, want status=%s since=%d until=%d", tc.name, h, tc.want, tc.since, tc.untilDu)
		}
	}
}

func TestEvaluate_ShortCadenceNeverHealthyAfterContact(t *testing.T) {
	t.Parallel()

	// frequency below the due-soon window: any contacted day counts as due soon
	h := Evaluate(conn("a", 7, 1), now)
	if h.Status != DueSoon {
		t.Fatalf("want due_soon, got %s", h.Status)
	}
}

func TestBucket(t *testing.T) {
	t.Parallel()

	b := Bucket([]model.Connection{
		conn("overdue-big", 30, 90),
		conn("overdue-small", 30, 35),
		conn("week", 30, 25),
		conn("month", 60, 40),
		conn("later", 90, 1),
		conn("zed-new", 30, -1),
		conn("amy-new", 30, -1),
	}, now)

	if len(b.Overdue) != 2 || b.Overdue[0].Connection.Name != "overdue-big" {
		t.Fatalf("overdue bucket: %+v", b.Overdue)
	}
	if len(b.Week) != 1 || b.Week[0].Connection.Name != "week" {
		t.Fatalf("week bucket: %+v", b.Week)
	}
	if len(b.Month) != 1 || b.Month[0].Connection.Name != "month" {
		t.Fatalf("month bucket: %+v", b.Month)
	}
	if len(b.NoSchedule) != 2 || b.NoSchedule[0].Connection.Name != "amy-new" {
		t.Fatalf("noSchedule bucket: %+v", b.NoSchedule)
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()

	c := conn("Ada", 30, 90)
	if got := Message(c, Evaluate(c, now)); got != "It's been a while. Reconnect with Ada?" {
		t.Fatalf("long overdue: %q", got)
	}
	c = conn("Ada", 30, 35)
	if got := Message(c, Evaluate(c, now)); got != "You wanted to catch up with Ada every 30 days." {
		t.Fatalf("overdue: %q", got)
	}
	c = conn("Ada", 30, 25)
	if got := Message(c, Evaluate(c, now)); got != "Follow-up with Ada is due in 5 days." {
		t.Fatalf("due soon: %q", got)
	}
	c = conn("Ada", 90, 1)
	if got := Message(c, Evaluate(c, now)); got != "" {
		t.Fatalf("healthy: %q", got)
	}
}

func TestBucket_NoScheduleNaturalOrder(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	var conns []model.Connection
	for _, n := range []string{"Contact 10", "Contact 2", "Contact 1"} {
		conns = append(conns, model.Connection{Name: n, Frequency: 30})
	}
	b := Bucket(conns, now)
	var got []string
	for _, it := range b.NoSchedule {
		got = append(got, it.Connection.Name)
	}
	want := []string{"Contact 1", "Contact 2", "Contact 10"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
