// Package convert maps domain models to and from the JSON wire format.
package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
	"github.com/and161185/connectpro/internal/reminders"
)

// Timestamp accepts RFC 3339 and zone-less ISO 8601 (read as UTC) and always writes RFC 3339 UTC.
type Timestamp time.Time

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses s with the accepted layouts.
func ParseTime(s string) (time.Time, error) {
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTime(s)
	if err != nil {
		return err
	}
	*t = Timestamp(v)
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(time.RFC3339Nano))
}

func tsPtr(t *time.Time) *Timestamp {
	if t == nil {
		return nil
	}
	v := Timestamp(*t)
	return &v
}

// User is the wire form of a principal.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	IsActive    bool      `json:"is_active"`
	IsOnboarded bool      `json:"is_onboarded"`
	CreatedAt   Timestamp `json:"created_at"`
}

// FromUser converts a domain user.
func FromUser(u model.User) User {
	return User{
		ID:          u.ID.String(),
		Email:       u.Email,
		Name:        u.Name,
		IsActive:    u.IsActive,
		IsOnboarded: u.IsOnboarded,
		CreatedAt:   Timestamp(u.CreatedAt),
	}
}

// Connection is the wire form of a connection, with follow-up status derived at read time.
type Connection struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Role         string     `json:"role"`
	Company      string     `json:"company"`
	Location     string     `json:"location"`
	Industry     string     `json:"industry"`
	HowMet       string     `json:"howMet"`
	Frequency    int        `json:"frequency"`
	LastContact  *Timestamp `json:"lastContact"`
	Notes        string     `json:"notes"`
	LinkedIn     string     `json:"linkedin"`
	Email        string     `json:"email"`
	Goals        string     `json:"goals"`
	Tags         []string   `json:"tags"`
	CreatedAt    Timestamp  `json:"created_at"`
	Status       string     `json:"status"`
	DaysSince    int        `json:"daysSinceContact"`
	DaysUntilDue int        `json:"daysUntilDue"`
}

// FromConnection converts a domain connection evaluated at now.
func FromConnection(c model.Connection, now time.Time) Connection {
	h := reminders.Evaluate(c, now)
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return Connection{
		ID:           c.ID.String(),
		Name:         c.Name,
		Role:         c.Role,
		Company:      c.Company,
		Location:     c.Location,
		Industry:     c.Industry,
		HowMet:       c.HowMet,
		Frequency:    c.Frequency,
		LastContact:  tsPtr(c.LastContact),
		Notes:        c.Notes,
		LinkedIn:     c.LinkedIn,
		Email:        c.Email,
		Goals:        c.Goals,
		Tags:         tags,
		CreatedAt:    Timestamp(c.CreatedAt),
		Status:       string(h.Status),
		DaysSince:    h.DaysSince,
		DaysUntilDue: h.DaysUntilDue,
	}
}

// FromConnections converts a slice, never returning nil.
func FromConnections(cs []model.Connection, now time.Time) []Connection {
	out := make([]Connection, 0, len(cs))
	for _, c := range cs {
		out = append(out, FromConnection(c, now))
	}
	return out
}

// ConnectionCreate is the create request body.
type ConnectionCreate struct {
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Company     string     `json:"company"`
	Location    string     `json:"location"`
	Industry    string     `json:"industry"`
	HowMet      string     `json:"howMet"`
	Frequency   *int       `json:"frequency"`
	LastContact *Timestamp `json:"lastContact"`
	Notes       string     `json:"notes"`
	LinkedIn    string     `json:"linkedin"`
	Email       string     `json:"email"`
	Goals       string     `json:"goals"`
	Tags        []string   `json:"tags"`
}

// Model converts the request into an unsaved connection. A missing frequency
// becomes the default; a supplied one is passed through for validation.
func (in ConnectionCreate) Model() model.Connection {
	c := model.Connection{
		Name:      in.Name,
		Role:      in.Role,
		Company:   in.Company,
		Location:  in.Location,
		Industry:  in.Industry,
		HowMet:    in.HowMet,
		Frequency: model.DefaultFrequency,
		Notes:     in.Notes,
		LinkedIn:  in.LinkedIn,
		Email:     in.Email,
		Goals:     in.Goals,
		Tags:      in.Tags,
	}
	if in.Frequency != nil {
		c.Frequency = *in.Frequency
	}
	if in.LastContact != nil {
		t := time.Time(*in.LastContact)
		c.LastContact = &t
	}
	return c
}

// DecodeConnectionPatch reads a partial update. Absent keys are left unchanged;
// "tags": null clears tags, "lastContact": null clears the last contact and
// null for any other field is ignored.
func DecodeConnectionPatch(body []byte) (model.ConnectionPatch, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.ConnectionPatch{}, fmt.Errorf("%w: body must be a JSON object", errs.ErrInvalidArgument)
	}
	var p model.ConnectionPatch
	strs := map[string]**string{
		"name": &p.Name, "role": &p.Role, "company": &p.Company, "location": &p.Location,
		"industry": &p.Industry, "howMet": &p.HowMet, "notes": &p.Notes, "goals": &p.Goals,
		"linkedin": &p.LinkedIn, "email": &p.Email,
	}
	for key, v := range raw {
		null := bytes.Equal(bytes.TrimSpace(v), []byte("null"))
		var err error
		switch key {
		case "frequency":
			if !null {
				err = json.Unmarshal(v, &p.Frequency)
			}
		case "tags":
			tags := []string{}
			if !null {
				err = json.Unmarshal(v, &tags)
			}
			p.Tags = &tags
		case "lastContact":
			if null {
				p.ClearLastContact = true
				continue
			}
			var ts Timestamp
			if err = json.Unmarshal(v, &ts); err == nil {
				t := time.Time(ts)
				p.LastContact = &t
			}
		default:
			dst, ok := strs[key]
			if !ok || null {
				continue
			}
			var s string
			if err = json.Unmarshal(v, &s); err == nil {
				*dst = &s
			}
		}
		if err != nil {
			return model.ConnectionPatch{}, fmt.Errorf("%w: %s: %v", errs.ErrInvalidArgument, key, err)
		}
	}
	return p, nil
}

// Log is the wire form of an interaction log.
type Log struct {
	ID           string    `json:"id"`
	ConnectionID *string   `json:"connection_id"`
	Type         string    `json:"type"`
	Notes        string    `json:"notes"`
	Tags         []string  `json:"tags"`
	CreatedAt    Timestamp `json:"created_at"`
}

// FromLog converts a domain log.
func FromLog(l model.Log) Log {
	out := Log{ID: l.ID.String(), Type: l.Type, Notes: l.Notes, Tags: l.Tags, CreatedAt: Timestamp(l.CreatedAt)}
	if out.Tags == nil {
		out.Tags = []string{}
	}
	if l.ConnectionID != nil {
		s := l.ConnectionID.String()
		out.ConnectionID = &s
	}
	return out
}

// FromLogs converts a slice, never returning nil.
func FromLogs(ls []model.Log) []Log {
	out := make([]Log, 0, len(ls))
	for _, l := range ls {
		out = append(out, FromLog(l))
	}
	return out
}

// LogCreate is the create request body.
type LogCreate struct {
	ConnectionID *string    `json:"connection_id"`
	Type         string     `json:"type"`
	Notes        string     `json:"notes"`
	Tags         []string   `json:"tags"`
	CreatedAt    *Timestamp `json:"created_at"`
}

// Model converts the request; a malformed connection id is errs.ErrInvalidArgument.
func (in LogCreate) Model() (model.Log, error) {
	l := model.Log{Type: in.Type, Notes: in.Notes, Tags: in.Tags}
	if in.ConnectionID != nil && *in.ConnectionID != "" {
		id, err := uuid.FromString(*in.ConnectionID)
		if err != nil {
			return model.Log{}, fmt.Errorf("%w: connection_id", errs.ErrInvalidArgument)
		}
		l.ConnectionID = &id
	}
	if in.CreatedAt != nil {
		l.CreatedAt = time.Time(*in.CreatedAt)
	}
	return l, nil
}

// Page is the pagination envelope.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewPage wraps converted items with the envelope of r.
func NewPage[M, T any](r model.PageResult[M], items []T) Page[T] {
	return Page[T]{Items: items, Total: r.Total, Limit: r.Limit, Offset: r.Offset}
}

// TagCategory is one group of a taxonomy listing.
type TagCategory struct {
	Label        string   `json:"label"`
	SingleSelect bool     `json:"singleSelect"`
	Options      []string `json:"options"`
}

// FromTaxonomy converts a grouped vocabulary.
func FromTaxonomy(t model.Taxonomy) map[string]TagCategory {
	out := make(map[string]TagCategory, len(t))
	for k, c := range t {
		out[k] = TagCategory{Label: c.Label, SingleSelect: c.SingleSelect, Options: c.Options}
	}
	return out
}

// Task is the poll response of an enrichment job.
type Task struct {
	Status string      `json:"status"`
	Data   *Enrichment `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Enrichment is the extracted profile.
type Enrichment struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Company  string `json:"company"`
	Location string `json:"location"`
	Industry string `json:"industry"`
}

// FromJob converts a job snapshot.
func FromJob(j model.EnrichmentJob) Task {
	t := Task{Status: string(j.Status)}
	switch j.Status {
	case model.JobSuccess:
		if j.Result != nil {
			r := j.Result
			t.Data = &Enrichment{Name: r.Name, Role: r.Role, Company: r.Company, Location: r.Location, Industry: r.Industry}
		}
	case model.JobFailure:
		t.Error = j.Error
	}
	return t
}

// FollowUpItem is one entry of a follow-up bucket.
type FollowUpItem struct {
	Connection Connection `json:"connection"`
	Message    string     `json:"message,omitempty"`
}

// FollowUps is the bucketed follow-up view.
type FollowUps struct {
	Overdue    []FollowUpItem `json:"overdue"`
	Week       []FollowUpItem `json:"week"`
	Month      []FollowUpItem `json:"month"`
	NoSchedule []FollowUpItem `json:"noSchedule"`
}

// FromBuckets converts buckets evaluated at now.
func FromBuckets(b reminders.Buckets, now time.Time) FollowUps {
	conv := func(items []reminders.Item) []FollowUpItem {
		out := make([]FollowUpItem, 0, len(items))
		for _, it := range items {
			out = append(out, FollowUpItem{
				Connection: FromConnection(it.Connection, now),
				Message:    reminders.Message(it.Connection, it.Health),
			})
		}
		return out
	}
	return FollowUps{
		Overdue:    conv(b.Overdue),
		Week:       conv(b.Week),
		Month:      conv(b.Month),
		NoSchedule: conv(b.NoSchedule),
	}
}
