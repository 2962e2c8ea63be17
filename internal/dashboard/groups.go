// Package dashboard shapes pipeline results for display: course groups,
// column limits, heatmap exclusions, the flagged latest-snapshot table and the
// previous-term overlay. It draws nothing.
package dashboard

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownGroup is returned when a group name matches no configured group.
var ErrUnknownGroup = errors.New("unknown course group")

// AllGroup is the name of the implicit group holding every course.
const AllGroup = "all"

// DefaultLimit is the number of newest snapshot columns shown by default.
const DefaultLimit = 15

// Group is a named subset of courses. A nil Courses list means every course.
type Group struct {
	Name    string   `json:"name"`
	Slug    string   `json:"slug"`
	Courses []string `json:"courses,omitempty"`
}

// Contains reports whether course belongs to g.
func (g Group) Contains(course string) bool {
	if g.Courses == nil {
		return true
	}
	for _, c := range g.Courses {
		if c == course {
			return true
		}
	}
	return false
}

func newGroup(name string, courses ...string) Group {
	return Group{Name: name, Slug: Slug(name), Courses: courses}
}

// DefaultGroups returns the chemistry department groupings.
func DefaultGroups() []Group {
	return []Group{
		{Name: "All", Slug: AllGroup},
		newGroup("Core Lectures",
			"CHE1010", "CHE1100", "CHE1800", "CHE1810", "CHE2100",
			"CHE3000", "CHE3100", "CHE3110", "CHE4310"),
		newGroup("Core Labs",
			"CHE1150", "CHE1801", "CHE1811", "CHE2150", "CHE3010",
			"CHE3120", "CHE3130", "CHE4350"),
		newGroup("Upper Division",
			"CHE3190", "CHE3200", "CHE4100", "CHE4110", "CHE4300",
			"CHE4320", "CHE4460", "CHE4490", "CHE4950", "CHE4960"),
		newGroup("Criminalistics",
			"CHE2710", "CHE2711", "CHE3610", "CHE4700", "CHE4710"),
	}
}

// DefaultHeatmapExclude lists courses left off the heatmap.
func DefaultHeatmapExclude() []string {
	return []string{"CHE3980", "CHE4370", "CHE4700", "CHE4710"}
}

// Slug turns a display name into a URL-safe group key.
func Slug(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	return strings.Join(fields, "-")
}

// Config configures a Dashboard.
type Config struct {
	Groups         []Group
	Limit          int
	HeatmapExclude []string
}

// DefaultConfig returns the stock groups, limit and exclusions.
func DefaultConfig() Config {
	return Config{
		Groups:         DefaultGroups(),
		Limit:          DefaultLimit,
		HeatmapExclude: DefaultHeatmapExclude(),
	}
}

// Dashboard applies a Config to results.
type Dashboard struct {
	cfg    Config
	groups map[string]Group
}

// New creates a Dashboard. Missing settings take their defaults, and the
// "all" group is always available.
func New(cfg Config) *Dashboard {
	if cfg.Groups == nil {
		cfg.Groups = DefaultGroups()
	} else {
		cfg.Groups = append([]Group(nil), cfg.Groups...)
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.HeatmapExclude == nil {
		cfg.HeatmapExclude = DefaultHeatmapExclude()
	}

	d := &Dashboard{cfg: cfg, groups: make(map[string]Group, len(cfg.Groups)+1)}
	for i, g := range cfg.Groups {
		if g.Slug == "" {
			g.Slug = Slug(g.Name)
			cfg.Groups[i] = g
		}
		d.groups[g.Slug] = g
	}
	if _, ok := d.groups[AllGroup]; !ok {
		all := Group{Name: "All", Slug: AllGroup}
		d.cfg.Groups = append([]Group{all}, d.cfg.Groups...)
		d.groups[AllGroup] = all
	}
	return d
}

// Groups returns the configured groups in display order.
func (d *Dashboard) Groups() []Group {
	return d.cfg.Groups
}

// Limit returns the default column limit.
func (d *Dashboard) Limit() int {
	return d.cfg.Limit
}

// Group looks a group up by slug or display name. The empty name is "all".
func (d *Dashboard) Group(name string) (Group, error) {
	if name == "" {
		name = AllGroup
	}
	if g, ok := d.groups[Slug(name)]; ok {
		return g, nil
	}
	return Group{}, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
}
