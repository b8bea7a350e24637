// Package selection holds the set of teams picked for a knockout bracket and
// the checks a selection must pass before a simulation can be submitted.
package selection

import (
	"errors"
	"iter"
	"slices"
	"strings"
)

var (
	ErrTooFewTeams     = errors.New("at least 2 teams are required for a tournament")
	ErrNotPowerOfTwo   = errors.New("team count must be a power of 2 to form a knockout bracket")
	ErrInvalidRunCount = errors.New("number of simulation runs must be a positive integer")
)

// Result is the outcome of Validate
type Result int

const (
	OK Result = iota
	TooFew
	NotPowerOfTwo
)

func (r Result) String() string {
	switch r {
	case OK:
		return "ok"
	case TooFew:
		return "too_few"
	case NotPowerOfTwo:
		return "not_power_of_two"
	default:
		return "unknown"
	}
}

// Err maps a failed result to its sentinel error; OK maps to nil
func (r Result) Err() error {
	switch r {
	case TooFew:
		return ErrTooFewTeams
	case NotPowerOfTwo:
		return ErrNotPowerOfTwo
	default:
		return nil
	}
}

// IsPowerOfTwo reports whether n has exactly one bit set
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// ValidateRuns rejects non-positive run counts. The value is never adjusted.
func ValidateRuns(n int) error {
	if n <= 0 {
		return ErrInvalidRunCount
	}
	return nil
}

// Selection is an ordered set of team names. It is not safe for concurrent use.
type Selection struct {
	teams []string
}

// New creates a selection from teams, dropping duplicates
func New(teams ...string) *Selection {
	s := &Selection{}
	for _, team := range teams {
		s.Add(team)
	}
	return s
}

// Toggle removes team when selected, otherwise appends it. It reports whether
// the team is selected afterwards.
func (s *Selection) Toggle(team string) bool {
	if i := slices.Index(s.teams, team); i >= 0 {
		s.teams = slices.Delete(s.teams, i, i+1)
		return false
	}
	s.teams = append(s.teams, team)
	return true
}

// Add appends team unless it is already selected
func (s *Selection) Add(team string) {
	if !s.Contains(team) {
		s.teams = append(s.teams, team)
	}
}

// Contains reports whether team is selected. Identity is case-sensitive.
func (s *Selection) Contains(team string) bool {
	return slices.Contains(s.teams, team)
}

// Teams returns a copy of the selected teams in insertion order
func (s *Selection) Teams() []string {
	return slices.Clone(s.teams)
}

// Len returns the number of selected teams
func (s *Selection) Len() int {
	return len(s.teams)
}

// Reset clears the selection
func (s *Selection) Reset() {
	s.teams = nil
}

// Validate checks the selection forms a complete knockout bracket
func (s *Selection) Validate() Result {
	n := len(s.teams)
	switch {
	case n < 2:
		return TooFew
	case !IsPowerOfTwo(n):
		return NotPowerOfTwo
	default:
		return OK
	}
}

// Filter yields the teams of all that are not selected and whose name contains
// query, ignoring case. The sequence is lazy and may be ranged over again;
// membership is checked at iteration time.
func (s *Selection) Filter(all []string, query string) iter.Seq[string] {
	q := strings.ToLower(query)
	return func(yield func(string) bool) {
		for _, team := range all {
			if s.Contains(team) {
				continue
			}
			if q != "" && !strings.Contains(strings.ToLower(team), q) {
				continue
			}
			if !yield(team) {
				return
			}
		}
	}
}
