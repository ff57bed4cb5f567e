// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects an issued access token and its expiry.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// MagicLink is a single-use sign-in link issued on registration.
type MagicLink struct {
	Token     string
	URL       string
	ExpiresAt time.Time
}

// User is the Principal that owns connections and logs.
type User struct {
	ID          uuid.UUID // PK
	Email       string    // unique, lower-cased
	Name        string
	IsActive    bool
	IsOnboarded bool
	CreatedAt   time.Time
}

// DefaultFrequency is the contact cadence in days applied when none is given.
const DefaultFrequency = 90

// Connection is a tracked person owned by exactly one user.
type Connection struct {
	ID          uuid.UUID
	UserID      uuid.UUID // FK -> users.id, never transferred
	Name        string
	Role        string
	Company     string
	Location    string
	Industry    string
	HowMet      string
	Notes       string
	Goals       string
	LinkedIn    string
	Email       string
	Frequency   int        // days, 1..3650
	LastContact *time.Time // max(created_at) of its logs or a manual value
	Tags        []string
	CreatedAt   time.Time
}

// ConnectionPatch is a partial update; nil fields are left unchanged.
type ConnectionPatch struct {
	Name      *string
	Role      *string
	Company   *string
	Location  *string
	Industry  *string
	HowMet    *string
	Notes     *string
	Goals     *string
	LinkedIn  *string
	Email     *string
	Frequency *int
	// Tags is non-nil when the caller sent the key at all (an empty slice clears).
	Tags *[]string
	// LastContact sets a manual value; ClearLastContact resets it to null.
	LastContact      *time.Time
	ClearLastContact bool
}

// Empty reports whether the patch changes nothing.
func (p ConnectionPatch) Empty() bool {
	return p.Name == nil && p.Role == nil && p.Company == nil && p.Location == nil &&
		p.Industry == nil && p.HowMet == nil && p.Notes == nil && p.Goals == nil &&
		p.LinkedIn == nil && p.Email == nil && p.Frequency == nil && p.Tags == nil &&
		p.LastContact == nil && !p.ClearLastContact
}

// DefaultLogType is applied to logs created without a type.
const DefaultLogType = "interaction"

// Log is a dated interaction record, optionally tied to a connection.
type Log struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	ConnectionID *uuid.UUID // nil for general notes
	Type         string
	Notes        string
	Tags         []string
	CreatedAt    time.Time // caller-suppliable for backdating
}

// TagType separates the two tag namespaces.
type TagType string

const (
	TagTypeConnection  TagType = "connection"
	TagTypeInteraction TagType = "interaction"
)

// Valid reports whether t is one of the recognized namespaces.
func (t TagType) Valid() bool {
	return t == TagTypeConnection || t == TagTypeInteraction
}

// CustomCategory holds tags introduced by callers outside the standard vocabulary.
const CustomCategory = "custom"

// TagDefinition is a registered (type, category, name) taxonomy entry.
type TagDefinition struct {
	ID       int64
	Type     TagType
	Category string
	Name     string
	IsCustom bool
}

// TagCategory is one group of a taxonomy listing.
type TagCategory struct {
	Label        string
	SingleSelect bool
	Options      []string
}

// Taxonomy maps category key to its group.
type Taxonomy map[string]TagCategory

// Page bounds a list query.
type Page struct {
	Limit  int
	Offset int
}

// PageResult is one page of a listing plus the unpaged total.
type PageResult[T any] struct {
	Items  []T
	Total  int
	Limit  int
	Offset int
}

// ConnectionFilter narrows a connection listing.
type ConnectionFilter struct {
	Tag    string // exact tag membership
	Search string // case-insensitive match on name/company/role
}

// LogFilter narrows a log listing.
type LogFilter struct {
	ConnectionID *uuid.UUID
}

// EnrichmentResult is the professional profile extracted from a public page.
type EnrichmentResult struct {
	Name     string
	Role     string
	Company  string
	Location string
	Industry string
}

// JobStatus is the lifecycle state of an enrichment job.
type JobStatus string

const (
	JobPending JobStatus = "Pending"
	JobSuccess JobStatus = "Success"
	JobFailure JobStatus = "Failure"
)

// EnrichmentJob is a polled enrichment task.
type EnrichmentJob struct {
	ID        uuid.UUID
	UserID    uuid.UUID // submitter; other users cannot poll it
	URL       string
	Status    JobStatus
	Result    *EnrichmentResult // set on success
	Error     string            // set on failure
	CreatedAt time.Time
	DoneAt    time.Time
}
