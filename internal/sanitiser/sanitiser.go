// Package sanitiser replaces private information in text cells with
// placeholders using an ordered, instance-owned list of regex patterns.
package sanitiser

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dlclark/regexp2"

	"glyphdeck/internal/logging"
	"glyphdeck/internal/types"
)

var (
	// ErrUnknownGroup is returned when a group name matches no pattern.
	ErrUnknownGroup = errors.New("unknown pattern group")
	// ErrBadPlaceholder is returned for placeholders with non-letter characters.
	ErrBadPlaceholder = errors.New("placeholder must contain only letters")
	// ErrDuplicatePattern is returned when AddPattern reuses a name.
	ErrDuplicatePattern = errors.New("pattern already exists")
)

// matchTimeout bounds a single regex evaluation.
const matchTimeout = 5 * time.Second

// Pattern describes one substitution.
type Pattern struct {
	Name        string
	Group       string
	Placeholder string
	Rank        float64
	Active      bool

	re *regexp2.Regexp
}

// Counts reports matches from one Sanitise call.
type Counts struct {
	ByPattern map[string]int
	ByGroup   map[string]int
	Total     int
}

// Sanitiser holds its own pattern list; instances never share state.
type Sanitiser struct {
	patterns []*Pattern
}

// New returns a sanitiser with every built-in pattern active.
func New() *Sanitiser {
	s := &Sanitiser{}
	for _, b := range builtins {
		s.patterns = append(s.patterns, &Pattern{
			Name:        b.name,
			Group:       b.group,
			Placeholder: b.placeholder,
			Rank:        b.rank,
			Active:      true,
			re:          compile(b.expr),
		})
	}
	return s
}

func compile(expr string) *regexp2.Regexp {
	re := regexp2.MustCompile(expr, regexp2.None)
	re.MatchTimeout = matchTimeout
	return re
}

// Patterns returns a copy of the pattern descriptors in rank order.
func (s *Sanitiser) Patterns() []Pattern {
	out := make([]Pattern, len(s.patterns))
	for i, p := range s.patterns {
		out[i] = *p
		out[i].re = nil
	}
	return out
}

// Groups lists every group name, sorted.
func (s *Sanitiser) Groups() []string {
	return s.groupsWhere(func(*Pattern) bool { return true })
}

// ActiveGroups lists the groups with at least one active pattern, sorted.
func (s *Sanitiser) ActiveGroups() []string {
	return s.groupsWhere(func(p *Pattern) bool { return p.Active })
}

func (s *Sanitiser) groupsWhere(keep func(*Pattern) bool) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range s.patterns {
		if keep(p) && !seen[p.Group] {
			seen[p.Group] = true
			out = append(out, p.Group)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Sanitiser) hasGroup(name string) bool {
	for _, p := range s.patterns {
		if p.Group == name {
			return true
		}
	}
	return false
}

// SelectGroups activates exactly the named groups.
func (s *Sanitiser) SelectGroups(names []string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if !s.hasGroup(n) {
			return fmt.Errorf("%w: %q (available: %v)", ErrUnknownGroup, n, s.Groups())
		}
		want[n] = true
	}
	for _, p := range s.patterns {
		p.Active = want[p.Group]
	}
	logging.SanitiserDebug("active groups: %v", s.ActiveGroups())
	return nil
}

// SetPlaceholders replaces the placeholder of every pattern in each named
// group. Values are upper-cased and wrapped in angle brackets.
func (s *Sanitiser) SetPlaceholders(byGroup map[string]string) error {
	normalised := make(map[string]string, len(byGroup))
	for group, raw := range byGroup {
		if !s.hasGroup(group) {
			return fmt.Errorf("%w: %q (available: %v)", ErrUnknownGroup, group, s.Groups())
		}
		ph, err := placeholder(raw)
		if err != nil {
			return fmt.Errorf("group %q: %w", group, err)
		}
		normalised[group] = ph
	}
	for _, p := range s.patterns {
		if ph, ok := normalised[p.Group]; ok {
			p.Placeholder = ph
		}
	}
	return nil
}

func placeholder(raw string) (string, error) {
	inner := strings.ToUpper(strings.NewReplacer("<", "", ">", "").Replace(raw))
	if inner == "" {
		return "", fmt.Errorf("%w: empty", ErrBadPlaceholder)
	}
	for _, r := range inner {
		if !unicode.IsLetter(r) {
			return "", fmt.Errorf("%w: %q", ErrBadPlaceholder, raw)
		}
	}
	return "<" + inner + ">", nil
}

// AddPattern adds an active pattern and re-sorts by rank. Equal ranks keep
// insertion order.
func (s *Sanitiser) AddPattern(name, group, ph string, rank float64, expr string) error {
	for _, p := range s.patterns {
		if p.Name == name {
			return fmt.Errorf("%w: %q", ErrDuplicatePattern, name)
		}
	}
	if group == "" {
		return fmt.Errorf("pattern %q: group required", name)
	}
	norm, err := placeholder(ph)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", name, err)
	}
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", name, err)
	}
	re.MatchTimeout = matchTimeout

	s.patterns = append(s.patterns, &Pattern{
		Name: name, Group: group, Placeholder: norm, Rank: rank, Active: true, re: re,
	})
	sort.SliceStable(s.patterns, func(i, j int) bool { return s.patterns[i].Rank < s.patterns[j].Rank })
	return nil
}

// SanitiseString runs every active pattern over text in rank order.
func (s *Sanitiser) SanitiseString(text string) (string, Counts, error) {
	counts := newCounts(s)
	out, err := s.apply(text, &counts)
	return out, counts, err
}

// Sanitise returns a copy of data with every string cell sanitised. Other
// cell types pass through untouched.
func (s *Sanitiser) Sanitise(data *types.DataTable) (*types.DataTable, Counts, error) {
	timer := logging.StartTimer(logging.CategorySanitiser, "sanitise")
	defer timer.Stop()

	counts := newCounts(s)
	out := types.NewDataTable()
	for _, id := range data.Keys() {
		row, _ := data.Get(id)
		clean := make(types.Row, len(row))
		for i, v := range row {
			text, ok := v.(string)
			if !ok {
				clean[i] = v
				continue
			}
			res, err := s.apply(text, &counts)
			if err != nil {
				return nil, Counts{}, fmt.Errorf("row %s column %d: %w", id, i, err)
			}
			clean[i] = res
		}
		out.Set(id, clean)
	}
	logging.Sanitiser("sanitised %d rows: %d matches %v", data.Len(), counts.Total, counts.ByGroup)
	return out, counts, nil
}

func newCounts(s *Sanitiser) Counts {
	c := Counts{ByPattern: map[string]int{}, ByGroup: map[string]int{}}
	for _, p := range s.patterns {
		if p.Active {
			c.ByPattern[p.Name] = 0
			c.ByGroup[p.Group] = 0
		}
	}
	return c
}

func (s *Sanitiser) apply(text string, c *Counts) (string, error) {
	for _, p := range s.patterns {
		if !p.Active {
			continue
		}
		n := 0
		ph := p.Placeholder
		res, err := p.re.ReplaceFunc(text, func(regexp2.Match) string {
			n++
			return ph
		}, -1, -1)
		if err != nil {
			return "", fmt.Errorf("pattern %s: %w", p.Name, err)
		}
		text = res
		c.ByPattern[p.Name] += n
		c.ByGroup[p.Group] += n
		c.Total += n
	}
	return text, nil
}
