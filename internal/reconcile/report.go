package reconcile

import (
	"cmp"
	"slices"
	gosync "sync"
	"time"
)

// PreviewReport collects planned actions per user in preview mode. It is
// safe for concurrent use.
type PreviewReport struct {
	mu    gosync.Mutex
	order []string
	plans map[string]*userPlan
}

type userPlan struct {
	add    []plannedTitle
	remove []plannedTitle
}

type plannedTitle struct {
	id    int
	title string
}

// UserPreview is one user's planned changes, titles sorted.
type UserPreview struct {
	User   string   `json:"user"`
	Add    []string `json:"add"`
	Remove []string `json:"remove"`
}

// NewPreviewReport creates a report that lists users in the given order.
func NewPreviewReport(users []string) *PreviewReport {
	p := &PreviewReport{plans: make(map[string]*userPlan, len(users))}

	for _, u := range users {
		p.plan(u)
	}

	return p
}

func (p *PreviewReport) plan(user string) *userPlan {
	up, ok := p.plans[user]
	if !ok {
		up = &userPlan{}
		p.plans[user] = up
		p.order = append(p.order, user)
	}

	return up
}

// Record adds e to the user's add or remove list.
func (p *PreviewReport) Record(user string, action Action, e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	up := p.plan(user)
	pt := plannedTitle{id: e.ID, title: e.Title}

	switch action {
	case ActionAdd:
		up.add = append(up.add, pt)
	case ActionRemove:
		up.remove = append(up.remove, pt)
	}
}

// Users returns every user with at least one planned change, in discovery
// order. Titles are sorted so output does not depend on worker scheduling.
func (p *PreviewReport) Users() []UserPreview {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []UserPreview

	for _, u := range p.order {
		up := p.plans[u]
		if len(up.add) == 0 && len(up.remove) == 0 {
			continue
		}

		out = append(out, UserPreview{
			User:   u,
			Add:    sortedTitles(up.add),
			Remove: sortedTitles(up.remove),
		})
	}

	return out
}

// Empty reports whether nothing would change.
func (p *PreviewReport) Empty() bool {
	return len(p.Users()) == 0
}

func sortedTitles(pts []plannedTitle) []string {
	sorted := slices.Clone(pts)
	slices.SortFunc(sorted, func(a, b plannedTitle) int {
		return cmp.Or(cmp.Compare(a.title, b.title), cmp.Compare(a.id, b.id))
	})

	titles := make([]string, 0, len(sorted))
	for _, pt := range sorted {
		titles = append(titles, pt.title)
	}

	return titles
}

// Report summarizes one reconciliation pass. Preview is non-nil only in
// preview mode.
type Report struct {
	RunID    string
	DryRun   bool
	Duration time.Duration

	Servers int
	Users   int
	Entries int

	// Skipped counts entries without an external ID.
	Skipped int

	// Unobserved counts (entry, user) pairs no server could observe.
	Unobserved int

	// Added and Removed count planned actions in a dry run.
	Added       int
	Removed     int
	Conflicts   int
	TagsCreated int

	Failed int
	Errors []error

	Preview *PreviewReport
}
