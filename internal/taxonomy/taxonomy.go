// Package taxonomy holds the standard tag vocabulary and category display metadata.
package taxonomy

import (
	_ "embed"
	"fmt"
	"io"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/and161185/connectpro/internal/model"
)

//go:embed standard.yaml
var standardYAML []byte

// Category is one group of the standard vocabulary.
type Category struct {
	Key          string   `yaml:"category"`
	Label        string   `yaml:"label"`
	SingleSelect bool     `yaml:"singleSelect"`
	Tags         []string `yaml:"tags"`
}

// Table is a parsed vocabulary keyed by tag type.
type Table struct {
	types map[model.TagType][]Category
	meta  map[string]Category
}

type document struct {
	Connection  []Category `yaml:"connection"`
	Interaction []Category `yaml:"interaction"`
}

// Standard returns the built-in vocabulary.
func Standard() *Table {
	t, err := Parse(standardYAML)
	if err != nil {
		panic(fmt.Sprintf("taxonomy: embedded vocabulary: %v", err))
	}
	return t
}

// Load parses a vocabulary document from r.
func Load(r io.Reader) (*Table, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse parses a YAML vocabulary document.
func Parse(b []byte) (*Table, error) {
	var doc document
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	t := &Table{
		types: map[model.TagType][]Category{
			model.TagTypeConnection:  doc.Connection,
			model.TagTypeInteraction: doc.Interaction,
		},
		meta: map[string]Category{},
	}
	for typ, cats := range t.types {
		for _, c := range cats {
			if c.Key == "" {
				return nil, fmt.Errorf("parse taxonomy: %s: category without key", typ)
			}
			if c.Key == model.CustomCategory {
				return nil, fmt.Errorf("parse taxonomy: %s: %q is reserved", typ, c.Key)
			}
			if _, dup := t.meta[c.Key]; !dup {
				t.meta[c.Key] = c
			}
		}
	}
	return t, nil
}

// Definitions flattens the table into seedable rows, in document order.
func (t *Table) Definitions() []model.TagDefinition {
	var out []model.TagDefinition
	for _, typ := range []model.TagType{model.TagTypeConnection, model.TagTypeInteraction} {
		for _, c := range t.types[typ] {
			for _, name := range c.Tags {
				if name == "" {
					continue
				}
				out = append(out, model.TagDefinition{Type: typ, Category: c.Key, Name: name})
			}
		}
	}
	return out
}

// Meta returns the display label and selection mode for a category.
// Unknown categories fall back to a title-cased label and multi-select.
func (t *Table) Meta(category string) (label string, singleSelect bool) {
	c, ok := t.meta[category]
	if !ok {
		return TitleCase(category), false
	}
	if c.Label == "" {
		return TitleCase(category), c.SingleSelect
	}
	return c.Label, c.SingleSelect
}

// Group builds a listing from rows of one type. Rows keep their order;
// repeated names within a category are dropped. Empty categories never appear.
func (t *Table) Group(defs []model.TagDefinition) model.Taxonomy {
	out := model.Taxonomy{}
	seen := map[string]map[string]struct{}{}
	for _, d := range defs {
		if d.Name == "" {
			continue
		}
		names, ok := seen[d.Category]
		if !ok {
			names = map[string]struct{}{}
			seen[d.Category] = names
		}
		if _, dup := names[d.Name]; dup {
			continue
		}
		names[d.Name] = struct{}{}

		cat, ok := out[d.Category]
		if !ok {
			cat.Label, cat.SingleSelect = t.Meta(d.Category)
		}
		cat.Options = append(cat.Options, d.Name)
		out[d.Category] = cat
	}
	return out
}

// TitleCase turns a category key such as "relationshipType" or "follow_up" into "Relationship Type" / "Follow Up".
func TitleCase(key string) string {
	var words []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range key {
		switch {
		case r == '_' || r == '-' || unicode.IsSpace(r):
			flush()
		case unicode.IsUpper(r) && i > 0:
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	for i, w := range words {
		rs := []rune(w)
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}
