// Package enrich extracts professional profile data from public profile pages
// and runs extraction as polled background jobs.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/net/html"

	"github.com/and161185/connectpro/internal/errs"
	"github.com/and161185/connectpro/internal/model"
)

// DefaultUserAgent is sent with every profile request; some sites refuse bare clients.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// maxPage caps how much of a profile page is read.
const maxPage = 4 << 20

// Scraper turns a profile URL into an EnrichmentResult.
type Scraper interface {
	Scrape(ctx context.Context, profileURL string) (model.EnrichmentResult, error)
}

// StatusError is returned when the profile page answers with a non-2xx status.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string { return fmt.Sprintf("Failed to fetch profile: %d", e.Code) }

// Is makes errors.Is(err, errs.ErrUpstream) hold.
func (e *StatusError) Is(target error) bool { return target == errs.ErrUpstream }

// HTTPScraper fetches pages over HTTP.
type HTTPScraper struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPScraper returns a scraper whose requests are bounded by timeout.
func NewHTTPScraper(timeout time.Duration) *HTTPScraper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPScraper{Client: &http.Client{Timeout: timeout}, UserAgent: DefaultUserAgent}
}

// Scrape returns a *StatusError for non-2xx answers. Transport failures are
// not errors: the result is derived from the URL slug instead.
func (s *HTTPScraper) Scrape(ctx context.Context, profileURL string) (model.EnrichmentResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return model.EnrichmentResult{}, fmt.Errorf("%w: %v", errs.ErrInvalidArgument, err)
	}
	req.Header.Set("User-Agent", s.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fromSlug(profileURL), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.EnrichmentResult{}, &StatusError{Code: resp.StatusCode}
	}
	doc, err := html.Parse(io.LimitReader(resp.Body, maxPage))
	if err != nil {
		return fromSlug(profileURL), nil
	}
	return extract(doc, profileURL), nil
}

// extract applies, in order: schema.org Person in JSON-LD, og:title, URL slug.
func extract(doc *html.Node, profileURL string) model.EnrichmentResult {
	var (
		res    model.EnrichmentResult
		ogText string
		ldDone bool
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script":
				if !ldDone && attr(n, "type") == "application/ld+json" && n.FirstChild != nil {
					if p, ok := findPerson([]byte(n.FirstChild.Data)); ok {
						res = p.result()
						ldDone = true
					}
				}
			case "meta":
				if ogText == "" && attr(n, "property") == "og:title" {
					ogText = attr(n, "content")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if res.Name == "" && ogText != "" {
		og := parseOGTitle(ogText)
		res.Name, res.Role, res.Company = og.Name, og.Role, og.Company
	}
	if res.Name == "" || strings.Contains(res.Name, "Join LinkedIn") {
		res.Name = fromSlug(profileURL).Name
	}
	return res
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

type person struct {
	Type    string `json:"@type"`
	Name    string `json:"name"`
	Address *struct {
		Locality string `json:"addressLocality"`
	} `json:"address"`
	WorksFor []struct {
		Name     string `json:"name"`
		Location string `json:"location"`
	} `json:"worksFor"`
	JobTitle stringList `json:"jobTitle"`
}

func (p person) result() model.EnrichmentResult {
	r := model.EnrichmentResult{Name: p.Name}
	if p.Address != nil {
		r.Location = p.Address.Locality
	}
	if len(p.WorksFor) > 0 {
		r.Company = p.WorksFor[0].Name
		if r.Location == "" {
			r.Location = p.WorksFor[0].Location
		}
	}
	// obfuscated titles look like "*** at ***"
	for _, t := range p.JobTitle {
		if !strings.Contains(t, "***") {
			r.Role = t
			break
		}
	}
	return r
}

// stringList accepts a JSON string or an array of strings.
type stringList []string

func (l *stringList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*l = []string{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// findPerson looks for a Person node at the top level or inside @graph.
func findPerson(raw []byte) (person, bool) {
	var doc struct {
		person
		Graph []json.RawMessage `json:"@graph"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return person{}, false
	}
	if len(doc.Graph) == 0 {
		return doc.person, doc.Type == "Person"
	}
	for _, g := range doc.Graph {
		var p person
		if err := json.Unmarshal(g, &p); err != nil {
			continue
		}
		if p.Type == "Person" {
			return p, true
		}
	}
	return person{}, false
}

// parseOGTitle splits "Name - Role at Company | Site".
// A short capitalized headline without " at " is taken as the company.
func parseOGTitle(content string) model.EnrichmentResult {
	main, _, _ := strings.Cut(content, "|")
	main = strings.TrimSpace(main)
	name, headline, found := strings.Cut(main, " - ")
	r := model.EnrichmentResult{Name: strings.TrimSpace(name)}
	if !found {
		return r
	}
	headline = strings.TrimSpace(headline)
	if headline == "" {
		return r
	}
	if role, company, ok := strings.Cut(headline, " at "); ok {
		r.Role, r.Company = strings.TrimSpace(role), strings.TrimSpace(company)
		return r
	}
	first := headline[0]
	if first >= 'A' && first <= 'Z' && len(strings.Fields(headline)) <= 4 {
		r.Company = headline
	} else {
		r.Role = headline
	}
	return r
}

// fromSlug derives a name from the last path segment: "bob-jones" -> "Bob Jones".
func fromSlug(profileURL string) model.EnrichmentResult {
	path := profileURL
	if u, err := url.Parse(profileURL); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.TrimRight(path, "/")
	slug := path[strings.LastIndex(path, "/")+1:]
	words := strings.FieldsFunc(slug, func(r rune) bool { return r == '-' || r == '_' })
	for i, w := range words {
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return model.EnrichmentResult{Name: strings.Join(words, " ")}
}
