package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tonimelisma/watchsync/internal/reconcile"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// printTable writes aligned columns to the given writer.
// headers and each row must have the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

// printRow writes a single padded row. The last cell is not padded.
func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			parts[i] = cell
			continue
		}

		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.Join(parts, "  "))
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// syncOutput is the JSON form of a sync report.
type syncOutput struct {
	RunID       string                  `json:"run_id"`
	DryRun      bool                    `json:"dry_run"`
	DurationMS  int64                   `json:"duration_ms"`
	Servers     int                     `json:"servers"`
	Users       int                     `json:"users"`
	Entries     int                     `json:"entries"`
	Skipped     int                     `json:"skipped"`
	Unobserved  int                     `json:"unobserved"`
	Added       int                     `json:"added"`
	Removed     int                     `json:"removed"`
	Conflicts   int                     `json:"conflicts"`
	TagsCreated int                     `json:"tags_created"`
	Failed      int                     `json:"failed"`
	Errors      []string                `json:"errors,omitempty"`
	Preview     []reconcile.UserPreview `json:"preview,omitempty"`
}

func newSyncOutput(r *reconcile.Report) syncOutput {
	out := syncOutput{
		RunID:       r.RunID,
		DryRun:      r.DryRun,
		DurationMS:  r.Duration.Milliseconds(),
		Servers:     r.Servers,
		Users:       r.Users,
		Entries:     r.Entries,
		Skipped:     r.Skipped,
		Unobserved:  r.Unobserved,
		Added:       r.Added,
		Removed:     r.Removed,
		Conflicts:   r.Conflicts,
		TagsCreated: r.TagsCreated,
		Failed:      r.Failed,
	}

	for _, err := range r.Errors {
		out.Errors = append(out.Errors, err.Error())
	}

	if r.Preview != nil {
		out.Preview = r.Preview.Users()
	}

	return out
}

func printSyncJSON(w io.Writer, r *reconcile.Report) error {
	return writeJSON(w, newSyncOutput(r))
}

// printSyncText prints the run summary, followed by the per-user plan in a
// dry run.
func printSyncText(w io.Writer, r *reconcile.Report) {
	if r.Preview != nil {
		printPreview(w, r.Preview)
		fmt.Fprintln(w)
	}

	added, removed := "tags added", "tags removed"
	if r.DryRun {
		added, removed = "tags to add", "tags to remove"
	}

	rows := [][]string{
		{"entries", strconv.Itoa(r.Entries)},
		{added, strconv.Itoa(r.Added)},
		{removed, strconv.Itoa(r.Removed)},
		{"conflicts", strconv.Itoa(r.Conflicts)},
		{"skipped (no id)", strconv.Itoa(r.Skipped)},
		{"unobserved", strconv.Itoa(r.Unobserved)},
		{"tags created", strconv.Itoa(r.TagsCreated)},
		{"failed", strconv.Itoa(r.Failed)},
	}

	fmt.Fprintf(w, "Reconciled %d users across %d servers in %s\n\n",
		r.Users, r.Servers, r.Duration.Round(10*time.Millisecond))
	printTable(w, []string{"RESULT", "COUNT"}, rows)

	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "\nFailures:")

		for _, err := range r.Errors {
			fmt.Fprintf(w, "  - %v\n", err)
		}
	}
}

// printPreview prints the planned changes grouped by user. Users with no
// planned change are omitted.
func printPreview(w io.Writer, p *reconcile.PreviewReport) {
	users := p.Users()

	fmt.Fprintln(w, "--- DRY RUN SUMMARY ---")

	if len(users) == 0 {
		fmt.Fprintln(w, "No changes.")
		return
	}

	for _, u := range users {
		fmt.Fprintf(w, "\nUser: %s\n", u.User)
		printTitles(w, "to tag as watched", u.Add)
		printTitles(w, "to untag", u.Remove)
	}
}

func printTitles(w io.Writer, heading string, titles []string) {
	if len(titles) == 0 {
		return
	}

	fmt.Fprintf(w, "  %s (%d):\n", heading, len(titles))

	for _, t := range titles {
		fmt.Fprintf(w, "    - %s\n", t)
	}
}

// usersOutput is the JSON form of the users command.
type usersOutput struct {
	Owner   string         `json:"owner"`
	Users   []string       `json:"users"`
	Servers []serverOutput `json:"servers"`
}

type serverOutput struct {
	Name      string `json:"name"`
	MachineID string `json:"machine_id"`
	Owner     string `json:"owner"`
}

func newUsersOutput(d *reconcile.Discovery) usersOutput {
	out := usersOutput{
		Owner:   d.Users.Owner,
		Users:   d.Users.Names,
		Servers: make([]serverOutput, 0, len(d.Servers)),
	}

	for _, srv := range d.Servers {
		out.Servers = append(out.Servers, serverOutput{
			Name:      srv.Name(),
			MachineID: srv.MachineID(),
			Owner:     d.Owners[srv.MachineID()],
		})
	}

	return out
}

func printUsersJSON(w io.Writer, d *reconcile.Discovery) error {
	return writeJSON(w, newUsersOutput(d))
}

func printUsersText(w io.Writer, d *reconcile.Discovery) {
	out := newUsersOutput(d)

	servers := make([][]string, 0, len(out.Servers))
	for _, s := range out.Servers {
		servers = append(servers, []string{s.Name, s.Owner})
	}

	printTable(w, []string{"SERVER", "OWNER"}, servers)
	fmt.Fprintln(w)

	owners := make(map[string]bool, len(d.Owners))
	for _, o := range d.Owners {
		owners[o] = true
	}

	users := make([][]string, 0, len(out.Users))

	for _, u := range out.Users {
		role := "shared"
		if owners[u] {
			role = "owner"
		}

		users = append(users, []string{u, role})
	}

	printTable(w, []string{"USER", "ROLE"}, users)
}
