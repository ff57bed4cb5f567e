package main

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/connectpro/internal/convert"
)

var (
	firstNames = []string{
		"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda",
		"David", "Elizabeth", "William", "Barbara", "Richard", "Susan", "Joseph", "Jessica",
		"Thomas", "Sarah", "Charles", "Karen", "Christopher", "Nancy", "Daniel", "Lisa",
		"Matthew", "Margaret", "Anthony", "Betty", "Mark", "Sandra", "Donald", "Ashley",
		"Steven", "Dorothy", "Paul", "Kimberly", "Andrew", "Emily", "Joshua", "Donna",
		"Kenneth", "Michelle", "Kevin", "Carol", "Brian", "Amanda", "George", "Melissa",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
		"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson",
		"Thomas", "Taylor", "Moore", "Jackson", "Martin", "Lee", "Perez", "Thompson",
		"White", "Harris", "Sanchez", "Clark", "Ramirez", "Lewis", "Robinson", "Walker",
		"Young", "Allen", "King", "Wright", "Scott", "Torres", "Nguyen", "Hill", "Flores",
		"Green", "Adams", "Nelson", "Baker", "Hall", "Rivera", "Campbell", "Mitchell",
	}
	cities = []string{
		"New York, NY", "San Francisco, CA", "Austin, TX", "London, UK", "Berlin, Germany",
		"Tokyo, Japan", "Singapore", "Toronto, Canada", "Sydney, Australia", "Paris, France",
		"Amsterdam, Netherlands", "Chicago, IL", "Boston, MA", "Seattle, WA", "Los Angeles, CA",
	}
	companies = []string{
		"TechCorp", "StartupInc", "DesignCo", "InnovateLtd", "FutureSystems",
		"Global Dynamics", "Acme Corp", "Omni Consumer", "Cyberdyne", "Soylent Corp",
		"Umbrella Corp", "Stark Ind", "Wayne Ent", "Massive Dynamic", "Hooli",
	}
	roles = []string{
		"Chief Technology Officer", "Chief Executive Officer", "Senior Software Engineer",
		"Product Manager", "Lead Designer", "Marketing Director", "VP of Sales",
		"Founder", "Talent Acquisition Manager", "Management Consultant",
		"Data Scientist", "DevOps Engineer", "Project Manager", "Head of Product",
		"Creative Director", "Investment Partner", "Angel Investor",
	}
	industries = []string{
		"Technology", "Finance", "Healthcare", "Education", "Retail",
		"Media", "Real Estate", "Automotive", "Energy", "Consulting",
	}
	howMet = []string{
		"Tech Conference 2024", "LinkedIn", "Mutual Friend (Sarah)", "Former Colleague",
		"College Roommate", "Twitter/X", "Cold Email", "Industry Meetup", "Y Combinator Demo Day",
		"Local Coffee Shop", "Hackathon",
	}
	tagPool = []string{
		"vip", "hiring", "mentor", "investor", "friend", "lead", "partner", "urgent",
		"warm", "tech", "founder", "local", "alumni", "recruiter", "gatekeeper",
	}
	topics = []string{
		"potential partnership", "open hiring roles", "Q3 roadmap goals", "seed investment round",
		"new project launch", "mutual referral", "market trends", "upcoming conference",
		"tech stack migration", "team expansion", "contract renewal", "product feedback",
	}
	logTemplates = map[string][]string{
		"call": {
			"Catch-up call about %s.",
			"Discussed %s over the phone.",
			"Quick sync regarding %s.",
			"Call to finalize %s details.",
		},
		"email": {
			"Sent details about %s.",
			"Followed up via email regarding %s.",
			"Received update on %s.",
			"Shared documents for %s.",
		},
		"meeting": {
			"Met for coffee to discuss %s.",
			"Lunch meeting: talked about %s.",
			"Board meeting covering %s.",
			"Strategy session on %s.",
		},
		"social": {
			"Chatted on LinkedIn about %s.",
			"Replied to their post about %s.",
			"Saw them at the mixer, briefly mentioned %s.",
			"DMed regarding %s.",
		},
	}
	logTypes    = []string{"call", "email", "meeting", "social"}
	frequencies = []int{7, 14, 30, 60, 90}
)

// generator produces demo records; the same seed and clock give the same data.
type generator struct {
	rng *rand.Rand
	now time.Time
}

func newGenerator(seed uint64, now time.Time) *generator {
	return &generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), now: now}
}

func pick[T any](g *generator, xs []T) T { return xs[g.rng.IntN(len(xs))] }

// sample returns n distinct elements of xs.
func (g *generator) sample(xs []string, n int) []string {
	idx := g.rng.Perm(len(xs))[:n]
	out := make([]string, n)
	for i, j := range idx {
		out[i] = xs[j]
	}
	return out
}

func (g *generator) connection() convert.ConnectionCreate {
	first, last, company := pick(g, firstNames), pick(g, lastNames), pick(g, companies)
	freq := pick(g, frequencies)
	return convert.ConnectionCreate{
		Name:      first + " " + last,
		Email:     fmt.Sprintf("%s.%s@%s.com", strings.ToLower(first), strings.ToLower(last), strings.ToLower(strings.ReplaceAll(company, " ", ""))),
		Company:   company,
		Role:      pick(g, roles),
		Location:  pick(g, cities),
		Industry:  pick(g, industries),
		HowMet:    pick(g, howMet),
		Frequency: &freq,
		Notes:     "Generated testing connection. Key interest: " + pick(g, topics) + ".",
		LinkedIn:  fmt.Sprintf("https://linkedin.com/in/%s-%s-%d", strings.ToLower(first), strings.ToLower(last), 100+g.rng.IntN(900)),
		Goals:     "Explore " + pick(g, topics) + " opportunities.",
		Tags:      g.sample(tagPool, g.rng.IntN(4)),
	}
}

// dayTime is now minus daysBack, at a random time between 09:00 and 18:59.
func (g *generator) dayTime(daysBack int) time.Time {
	d := g.now.AddDate(0, 0, -daysBack)
	return time.Date(d.Year(), d.Month(), d.Day(), 9+g.rng.IntN(10), g.rng.IntN(60), g.rng.IntN(60), 0, time.UTC)
}

// logs returns between 1 and 30 logs (mean 10) over the last 180 days, oldest first.
func (g *generator) logs(connID string) []convert.LogCreate {
	n := int(g.rng.NormFloat64()*5 + 10)
	n = max(1, min(30, n))

	dates := make([]time.Time, n)
	for i := range dates {
		dates[i] = g.dayTime(g.rng.IntN(181))
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]convert.LogCreate, n)
	for i, d := range dates {
		typ := pick(g, logTypes)
		ts := convert.Timestamp(d)
		id := connID
		out[i] = convert.LogCreate{
			ConnectionID: &id,
			Type:         typ,
			Notes:        fmt.Sprintf(pick(g, logTemplates[typ]), pick(g, topics)),
			Tags:         g.sample(tagPool, g.rng.IntN(3)),
			CreatedAt:    &ts,
		}
	}
	return out
}

// lastContact picks a manual last-contact date: 20% overdue, 20% due soon, the rest healthy.
func (g *generator) lastContact(frequency int) time.Time {
	var daysBack int
	switch roll := g.rng.Float64(); {
	case roll < 0.2:
		daysBack = frequency + 1 + g.rng.IntN(60)
	case roll < 0.4:
		lo := max(1, frequency-7)
		daysBack = lo + g.rng.IntN(max(1, frequency-lo))
	default:
		daysBack = g.rng.IntN(max(1, frequency-8) + 1)
	}
	return g.now.AddDate(0, 0, -daysBack).UTC()
}

type seedOptions struct {
	connections int
	withLogs    int
	seed        uint64
	fresh       bool
	email       string
}

func demoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Demo data helpers",
	}
	o := seedOptions{}
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Fill an account with realistic connections and backdated logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.withLogs > o.connections {
				o.withLogs = o.connections
			}
			if o.seed == 0 {
				o.seed = uint64(time.Now().UnixNano())
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
			defer cancel()

			out := cmd.OutOrStdout()
			var c *apiClient
			if o.fresh {
				c, _ = a.client(false)
				g := newGenerator(o.seed, time.Now())
				email := o.email
				if email == "" {
					email = fmt.Sprintf("testuser%d@example.com", 1000+g.rng.IntN(9000))
				}
				fmt.Fprintf(out, "registering %s\n", email)
				link, err := requestLink(ctx, c, email, "Test User")
				if err != nil {
					return err
				}
				if _, err := redeem(ctx, c, a.configDir, link); err != nil {
					return err
				}
			} else {
				var err error
				if c, err = a.client(true); err != nil {
					return err
				}
			}
			st, err := runSeed(ctx, c, newGenerator(o.seed, time.Now()), o, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "done: %d connections, %d logs, %d manual last-contact dates\n", st.connections, st.logs, st.manual)
			return nil
		},
	}
	f := seed.Flags()
	f.IntVar(&o.connections, "connections", 100, "connections to create")
	f.IntVar(&o.withLogs, "with-logs", 60, "connections that receive logs")
	f.Uint64Var(&o.seed, "seed", 0, "random seed (0 picks one)")
	f.BoolVar(&o.fresh, "fresh", true, "register a new account first")
	f.StringVar(&o.email, "email", "", "email for --fresh (random when empty)")
	cmd.AddCommand(seed)
	return cmd
}

type seedStats struct{ connections, logs, manual int }

func runSeed(ctx context.Context, c *apiClient, g *generator, o seedOptions, out io.Writer) (seedStats, error) {
	var st seedStats
	created := make([]convert.Connection, 0, o.connections)
	for i := 0; i < o.connections; i++ {
		var cn convert.Connection
		if err := c.do(ctx, http.MethodPost, "/api/connections", g.connection(), &cn); err != nil {
			return st, fmt.Errorf("connection %d: %w", i, err)
		}
		created = append(created, cn)
		if i%10 == 0 {
			fmt.Fprintf(out, "  created %d/%d connections\n", i+1, o.connections)
		}
	}
	st.connections = len(created)

	order := g.rng.Perm(len(created))
	for n, i := range order {
		cn := created[i]
		if n < o.withLogs {
			for _, l := range g.logs(cn.ID) {
				if err := c.do(ctx, http.MethodPost, "/api/logs", l, nil); err != nil {
					return st, fmt.Errorf("log for %s: %w", cn.ID, err)
				}
				st.logs++
			}
			continue
		}
		// half of the rest get a manual date, the others stay never contacted
		if g.rng.IntN(2) == 0 {
			continue
		}
		patch := map[string]any{"lastContact": convert.Timestamp(g.lastContact(cn.Frequency))}
		if err := c.do(ctx, http.MethodPut, "/api/connections/"+cn.ID, patch, nil); err != nil {
			return st, fmt.Errorf("last contact for %s: %w", cn.ID, err)
		}
		st.manual++
	}
	return st, nil
}
