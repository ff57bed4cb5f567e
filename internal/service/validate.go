package service

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
)

// Field bounds.
const (
	maxNameLen     = 200
	maxShortLen    = 200
	maxLongLen     = 5000
	maxLinkedInLen = 500
	maxEmailLen    = 320
	minFrequency   = 1
	maxFrequency   = 3650
	maxTagLen      = 64
	maxTags        = 50
	maxLogTypeLen  = 50
	maxLogNotesLen = 10000
)

// Pagination defaults.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// NormalizePage applies the default limit and the ceiling. Negative values are rejected.
func NormalizePage(p model.Page) (model.Page, error) {
	if p.Limit < 0 || p.Offset < 0 {
		return model.Page{}, fmt.Errorf("%w: limit and offset must not be negative", errs.ErrInvalidArgument)
	}
	if p.Limit == 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p, nil
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func checkLen(v *errs.ValidationError, field, s string, max int) {
	if utf8.RuneCountInString(s) > max {
		v.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

func checkEmail(v *errs.ValidationError, field, s string) {
	if s == "" {
		return
	}
	checkLen(v, field, s, maxEmailLen)
	if !strings.Contains(s, "@") {
		v.Add(field, "must be an email address")
	}
}

func checkURL(v *errs.ValidationError, field, s string) {
	if s == "" {
		return
	}
	checkLen(v, field, s, maxLinkedInLen)
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		v.Add(field, "must be an http(s) URL")
	}
}

func checkFrequency(v *errs.ValidationError, f int) {
	if f < minFrequency || f > maxFrequency {
		v.Add("frequency", fmt.Sprintf("must be between %d and %d", minFrequency, maxFrequency))
	}
}

// normalizeTags drops repeated names keeping the first occurrence and checks bounds.
// Names are otherwise stored exactly as given.
func normalizeTags(v *errs.ValidationError, field string, tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if strings.TrimSpace(t) == "" {
			v.Add(field, "must not contain blank tags")
			continue
		}
		if utf8.RuneCountInString(t) > maxTagLen {
			v.Add(field, fmt.Sprintf("tags must be at most %d characters", maxTagLen))
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) > maxTags {
		v.Add(field, fmt.Sprintf("at most %d tags", maxTags))
	}
	return out
}

// prepareConnection validates c for creation and fills defaults in place.
func prepareConnection(c *model.Connection) error {
	var v errs.ValidationError
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		v.Add("name", "required")
	}
	checkLen(&v, "name", c.Name, maxNameLen)
	for field, s := range map[string]string{
		"role": c.Role, "company": c.Company, "location": c.Location,
		"industry": c.Industry, "howMet": c.HowMet,
	} {
		checkLen(&v, field, s, maxShortLen)
	}
	checkLen(&v, "notes", c.Notes, maxLongLen)
	checkLen(&v, "goals", c.Goals, maxLongLen)
	checkURL(&v, "linkedin", c.LinkedIn)
	checkEmail(&v, "email", c.Email)
	checkFrequency(&v, c.Frequency)
	c.Tags = normalizeTags(&v, "tags", c.Tags)
	if c.LastContact != nil {
		u := c.LastContact.UTC()
		c.LastContact = &u
	}
	return v.OrNil()
}

// preparePatch validates the present fields of p and normalizes them in place.
func preparePatch(p *model.ConnectionPatch) error {
	var v errs.ValidationError
	if p.Name != nil {
		n := strings.TrimSpace(*p.Name)
		p.Name = &n
		if n == "" {
			v.Add("name", "required")
		}
		checkLen(&v, "name", n, maxNameLen)
	}
	for field, s := range map[string]*string{
		"role": p.Role, "company": p.Company, "location": p.Location,
		"industry": p.Industry, "howMet": p.HowMet,
	} {
		if s != nil {
			checkLen(&v, field, *s, maxShortLen)
		}
	}
	if p.Notes != nil {
		checkLen(&v, "notes", *p.Notes, maxLongLen)
	}
	if p.Goals != nil {
		checkLen(&v, "goals", *p.Goals, maxLongLen)
	}
	if p.LinkedIn != nil {
		checkURL(&v, "linkedin", *p.LinkedIn)
	}
	if p.Email != nil {
		checkEmail(&v, "email", *p.Email)
	}
	if p.Frequency != nil {
		checkFrequency(&v, *p.Frequency)
	}
	if p.Tags != nil {
		tags := normalizeTags(&v, "tags", *p.Tags)
		p.Tags = &tags
	}
	if p.LastContact != nil && p.ClearLastContact {
		v.Add("lastContact", "cannot both set and clear")
	}
	if p.LastContact != nil {
		u := p.LastContact.UTC()
		p.LastContact = &u
	}
	return v.OrNil()
}

// prepareLog validates l for creation and fills defaults in place.
func prepareLog(l *model.Log) error {
	var v errs.ValidationError
	l.Type = strings.TrimSpace(l.Type)
	if l.Type == "" {
		l.Type = model.DefaultLogType
	}
	checkLen(&v, "type", l.Type, maxLogTypeLen)
	if strings.TrimSpace(l.Notes) == "" {
		v.Add("notes", "required")
	}
	checkLen(&v, "notes", l.Notes, maxLogNotesLen)
	l.Tags = normalizeTags(&v, "tags", l.Tags)
	return v.OrNil()
}
