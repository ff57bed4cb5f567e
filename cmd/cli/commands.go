package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/and161185/connectpro/internal/convert"
)

// app carries the global flags shared by every subcommand.
type app struct {
	addr      string
	configDir string
	timeout   time.Duration
	jsonOut   bool
}

func (a *app) client(authed bool) (*apiClient, error) {
	tok := ""
	if authed {
		var err error
		if tok, err = loadToken(a.configDir); err != nil {
			return nil, err
		}
	}
	return newAPIClient(a.addr, tok, a.timeout), nil
}

func (a *app) ctx(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout)
}

func (a *app) print(w io.Writer, v any, table func(*tabwriter.Writer)) {
	if a.jsonOut || table == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(v)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	table(tw)
	_ = tw.Flush()
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "cpctl",
		Short:         "Command line client for the ConnectPro API",
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.addr, "addr", "http://localhost:8000", "API base URL")
	pf.StringVar(&a.configDir, "config-dir", cfgDir(), "directory holding the saved token")
	pf.DurationVar(&a.timeout, "timeout", 30*time.Second, "per-command timeout")
	pf.BoolVar(&a.jsonOut, "json", false, "print raw JSON")

	root.AddCommand(
		loginCmd(a),
		whoamiCmd(a),
		connectionsCmd(a),
		logsCmd(a),
		tagsCmd(a),
		followupsCmd(a),
		enrichCmd(a),
		demoCmd(a),
	)
	return root
}

// ---- auth ----

func loginCmd(a *app) *cobra.Command {
	var email, name string
	var linkOnly bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Request a magic link and redeem it, saving the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if email == "" {
				return errors.New("--email is required")
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			c, _ := a.client(false)

			link, err := requestLink(ctx, c, email, name)
			if err != nil {
				return err
			}
			if linkOnly {
				fmt.Fprintln(cmd.OutOrStdout(), link)
				return nil
			}
			u, err := redeem(ctx, c, a.configDir, link)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", u.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&linkOnly, "link-only", false, "print the magic link instead of redeeming it")

	verify := &cobra.Command{
		Use:   "verify <link-or-token>",
		Short: "Redeem a magic link obtained earlier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			c, _ := a.client(false)
			u, err := redeem(ctx, c, a.configDir, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s\n", u.Email)
			return nil
		},
	}
	cmd.AddCommand(verify)
	return cmd
}

func requestLink(ctx context.Context, c *apiClient, email, name string) (string, error) {
	var out struct {
		MagicLink string `json:"magic_link"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{"email": email, "name": name}, &out); err != nil {
		return "", err
	}
	return out.MagicLink, nil
}

// tokenFromLink accepts a full magic link or the bare token.
func tokenFromLink(s string) string {
	if u, err := url.Parse(s); err == nil && u.Scheme != "" {
		if t := u.Query().Get("token"); t != "" {
			return t
		}
	}
	return s
}

type verifyResponse struct {
	AccessToken string            `json:"access_token"`
	ExpiresAt   convert.Timestamp `json:"expires_at"`
	User        convert.User      `json:"user"`
}

func redeem(ctx context.Context, c *apiClient, dir, link string) (convert.User, error) {
	var out verifyResponse
	q := url.Values{"token": {tokenFromLink(link)}}
	if err := c.do(ctx, http.MethodPost, withQuery("/api/auth/verify", q), nil, &out); err != nil {
		return convert.User{}, err
	}
	err := saveToken(dir, tokenFile{
		AccessToken: out.AccessToken,
		ExpiresAt:   time.Time(out.ExpiresAt),
		Email:       out.User.Email,
	})
	if err != nil {
		return convert.User{}, err
	}
	c.token = out.AccessToken
	return out.User, nil
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			var u convert.User
			if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &u); err != nil {
				return err
			}
			a.print(cmd.OutOrStdout(), u, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "id\t%s\nemail\t%s\nname\t%s\nonboarded\t%t\n", u.ID, u.Email, u.Name, u.IsOnboarded)
			})
			return nil
		},
	}
}

// ---- connections ----

func connectionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "connections",
		Aliases: []string{"conn", "c"},
		Short:   "Manage connections",
	}

	var tag, search string
	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			q := url.Values{}
			if tag != "" {
				q.Set("tag", tag)
			}
			if search != "" {
				q.Set("q", search)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			if offset > 0 {
				q.Set("offset", strconv.Itoa(offset))
			}
			var page convert.Page[convert.Connection]
			if err := c.do(ctx, http.MethodGet, withQuery("/api/connections", q), nil, &page); err != nil {
				return err
			}
			a.print(cmd.OutOrStdout(), page, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "ID\tNAME\tCOMPANY\tSTATUS\tLAST CONTACT")
				for _, cn := range page.Items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", cn.ID, cn.Name, cn.Company, cn.Status, fmtTime(cn.LastContact))
				}
				fmt.Fprintf(tw, "\n%d of %d\n", len(page.Items), page.Total)
			})
			return nil
		},
	}
	list.Flags().StringVar(&tag, "tag", "", "only connections carrying this tag")
	list.Flags().StringVarP(&search, "query", "q", "", "search name, company and role")
	list.Flags().IntVar(&limit, "limit", 0, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "page offset")

	var (
		in        convert.ConnectionCreate
		frequency int
	)
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			in.Name = args[0]
			if cmd.Flags().Changed("frequency") {
				in.Frequency = &frequency
			}
			var out convert.Connection
			if err := c.do(ctx, http.MethodPost, "/api/connections", in, &out); err != nil {
				return err
			}
			a.print(cmd.OutOrStdout(), out, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "created\t%s\n", out.ID)
			})
			return nil
		},
	}
	f := add.Flags()
	f.StringVar(&in.Role, "role", "", "")
	f.StringVar(&in.Company, "company", "", "")
	f.StringVar(&in.Location, "location", "", "")
	f.StringVar(&in.Industry, "industry", "", "")
	f.StringVar(&in.HowMet, "how-met", "", "")
	f.StringVar(&in.Email, "email", "", "")
	f.StringVar(&in.LinkedIn, "linkedin", "", "profile URL")
	f.StringVar(&in.Notes, "notes", "", "")
	f.StringVar(&in.Goals, "goals", "", "")
	f.IntVar(&frequency, "frequency", 0, "contact cadence in days (server default 90)")
	f.StringSliceVar(&in.Tags, "tag", nil, "tag, repeatable")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			var out convert.Connection
			if err := c.do(ctx, http.MethodGet, "/api/connections/"+url.PathEscape(args[0]), nil, &out); err != nil {
				return err
			}
			a.print(cmd.OutOrStdout(), out, nil)
			return nil
		},
	}

	var setJSON string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Patch a connection with a JSON object, e.g. --set '{\"lastContact\":null}'",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch map[string]any
			if err := json.Unmarshal([]byte(setJSON), &patch); err != nil {
				return fmt.Errorf("--set: %w", err)
			}
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			var out convert.Connection
			if err := c.do(ctx, http.MethodPut, "/api/connections/"+url.PathEscape(args[0]), patch, &out); err != nil {
				return err
			}
			a.print(cmd.OutOrStdout(), out, nil)
			return nil
		},
	}
	update.Flags().StringVar(&setJSON, "set", "{}", "JSON object of fields to change")

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a connection; its logs become general notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			if err := c.do(ctx, http.MethodDelete, "/api/connections/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}

	cmd.AddCommand(list, add, get, update, rm)
	return cmd
}

// ---- logs ----

func logsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Record and browse interactions",
	}

	var connID string
	list := &cobra.Command{
		Use:   "list",
		Short: "List logs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			q := url.Values{}
			if connID != "" {
				q.Set("connection_id", connID)
			}
			var page convert.Page[convert.Log]
			if err := c.do(ctx, http.MethodGet, withQuery("/api/logs", q), nil, &page); err != nil {
				return err
			}
			a.print(cmd.OutOrStdout(), page, func(tw *tabwriter.Writer) {
				fmt.Fprintln(tw, "ID\tWHEN\tTYPE\tNOTES")
				for _, l := range page.Items {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", l.ID, fmtTime(&l.CreatedAt), l.Type, oneLine(l.Notes, 60))
				}
			})
			return nil
		},
	}
	list.Flags().StringVar(&connID, "connection", "", "only logs of this connection")

	var in convert.LogCreate
	var when string
	add := &cobra.Command{
		Use:   "add <notes>",
		Short: "Record an interaction; --at backdates it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Notes = args[0]
			if when != "" {
				t, err := convert.ParseTime(when)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				ts := convert.Timestamp(t)
				in.CreatedAt = &ts
			}
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			var out convert.Log
			if err := c.do(ctx, http.MethodPost, "/api/logs", in, &out); err != nil {
				return err
			}
			a.print(cmd.OutOrStdout(), out, func(tw *tabwriter.Writer) {
				fmt.Fprintf(tw, "created\t%s\n", out.ID)
			})
			return nil
		},
	}
	add.Flags().Var(optString{&in.ConnectionID}, "connection", "connection id (omit for a general note)")
	add.Flags().StringVar(&in.Type, "type", "", "interaction type (default interaction)")
	add.Flags().StringSliceVar(&in.Tags, "tag", nil, "tag, repeatable")
	add.Flags().StringVar(&when, "at", "", "when it happened (RFC 3339 or YYYY-MM-DD)")

	rm := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			if err := c.do(ctx, http.MethodDelete, "/api/logs/"+url.PathEscape(args[0]), nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}

	cmd.AddCommand(list, add, rm)
	return cmd
}

// optString is a pflag.Value filling a *string only when the flag is given.
type optString struct{ p **string }

func (o optString) String() string {
	if o.p == nil || *o.p == nil {
		return ""
	}
	return **o.p
}

func (o optString) Set(v string) error {
	*o.p = &v
	return nil
}

func (optString) Type() string { return "string" }

// ---- tags, follow-ups ----

func tagsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "tags <connection|interaction>",
		Short:     "Show the tag vocabulary",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"connection", "interaction"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			var out map[string]convert.TagCategory
			if err := c.do(ctx, http.MethodGet, "/api/tags/"+args[0], nil, &out); err != nil {
				return err
			}
			a.print(cmd.OutOrStdout(), out, func(tw *tabwriter.Writer) {
				for _, k := range sortedKeys(out) {
					fmt.Fprintf(tw, "%s\t%s\n", out[k].Label, strings.Join(out[k].Options, ", "))
				}
			})
			return nil
		},
	}
}

func followupsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "followups",
		Short: "Show who to reach out to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			var out convert.FollowUps
			if err := c.do(ctx, http.MethodGet, "/api/followups", nil, &out); err != nil {
				return err
			}
			a.print(cmd.OutOrStdout(), out, func(tw *tabwriter.Writer) {
				section := func(title string, items []convert.FollowUpItem) {
					fmt.Fprintf(tw, "%s (%d)\n", title, len(items))
					for _, it := range items {
						fmt.Fprintf(tw, "  %s\t%s\t%s\n", it.Connection.Name, it.Connection.Status, it.Message)
					}
				}
				section("Overdue", out.Overdue)
				section("This week", out.Week)
				section("This month", out.Month)
				section("Never contacted", out.NoSchedule)
			})
			return nil
		},
	}
}

// ---- enrichment ----

func enrichCmd(a *app) *cobra.Command {
	var every time.Duration
	cmd := &cobra.Command{
		Use:   "enrich <profile-url>",
		Short: "Fetch public profile details and wait for the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client(true)
			if err != nil {
				return err
			}
			ctx, cancel := a.ctx(cmd)
			defer cancel()
			task, err := enrichAndWait(ctx, c, args[0], every)
			if err != nil {
				return err
			}
			if task.Status != "Success" {
				return fmt.Errorf("enrichment failed: %s", task.Error)
			}
			a.print(cmd.OutOrStdout(), task.Data, func(tw *tabwriter.Writer) {
				d := task.Data
				fmt.Fprintf(tw, "name\t%s\nrole\t%s\ncompany\t%s\nlocation\t%s\nindustry\t%s\n",
					d.Name, d.Role, d.Company, d.Location, d.Industry)
			})
			return nil
		},
	}
	cmd.Flags().DurationVar(&every, "poll", 500*time.Millisecond, "poll interval")
	return cmd
}

func enrichAndWait(ctx context.Context, c *apiClient, profile string, every time.Duration) (convert.Task, error) {
	var sub struct {
		TaskID string `json:"task_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/enrich", map[string]string{"linkedin_url": profile}, &sub); err != nil {
		return convert.Task{}, err
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		var task convert.Task
		if err := c.do(ctx, http.MethodGet, "/api/tasks/"+sub.TaskID, nil, &task); err != nil {
			return convert.Task{}, err
		}
		if task.Status != "Pending" {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return convert.Task{}, ctx.Err()
		case <-t.C:
		}
	}
}

// ---- utils ----

func fmtTime(t *convert.Timestamp) string {
	if t == nil {
		return "-"
	}
	return time.Time(*t).Local().Format("2006-01-02 15:04")
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
