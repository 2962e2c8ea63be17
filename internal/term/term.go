// Package term parses academic term labels and routes a term pair to the
// course rename set that reconciles them.
package term

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnknownSeason is returned when a term label does not start with a known season.
var ErrUnknownSeason = errors.New("unknown season")

// ErrInvalidTermPair is returned when a previous term does not precede the current one.
var ErrInvalidTermPair = errors.New("invalid term pair")

// Season is the part of the academic year a term falls in. Seasons order
// chronologically within a calendar year.
type Season int

const (
	Winter Season = iota
	Spring
	Summer
	Fall
)

var seasonNames = [...]string{"Winter", "Spring", "Summer", "Fall"}

func (s Season) String() string {
	if s < Winter || s > Fall {
		return fmt.Sprintf("Season(%d)", int(s))
	}
	return seasonNames[s]
}

// Term identifies one academic term, e.g. Spring2021.
type Term struct {
	Season Season
	Year   int
}

// Parse parses a label such as "Spring2021". Season names are matched case
// insensitively; "Autumn" is accepted for Fall.
func Parse(label string) (Term, error) {
	label = strings.TrimSpace(label)
	i := strings.IndexFunc(label, func(r rune) bool { return r >= '0' && r <= '9' })
	if i <= 0 {
		return Term{}, fmt.Errorf("term %q: want <Season><Year>", label)
	}

	var season Season
	switch strings.ToLower(label[:i]) {
	case "winter":
		season = Winter
	case "spring":
		season = Spring
	case "summer":
		season = Summer
	case "fall", "autumn":
		season = Fall
	default:
		return Term{}, fmt.Errorf("%w: %q in term %q", ErrUnknownSeason, label[:i], label)
	}

	yearPart := label[i:]
	if len(yearPart) != 4 {
		return Term{}, fmt.Errorf("term %q: year must have four digits", label)
	}
	year, err := strconv.Atoi(yearPart)
	if err != nil {
		return Term{}, fmt.Errorf("term %q: %w", label, err)
	}
	return Term{Season: season, Year: year}, nil
}

// MustParse is like Parse but panics on error. For tests and constants.
func MustParse(label string) Term {
	t, err := Parse(label)
	if err != nil {
		panic(err)
	}
	return t
}

func (t Term) String() string {
	return fmt.Sprintf("%s%04d", t.Season, t.Year)
}

// IsZero reports whether t is unset.
func (t Term) IsZero() bool {
	return t == Term{}
}

// Before reports whether t starts before o.
func (t Term) Before(o Term) bool {
	if t.Year != o.Year {
		return t.Year < o.Year
	}
	return t.Season < o.Season
}

// Previous returns the same season one year earlier, the term a year-over-year
// comparison uses by default.
func (t Term) Previous() Term {
	return Term{Season: t.Season, Year: t.Year - 1}
}

// MarshalText implements encoding.TextMarshaler. The zero Term encodes as "".
func (t Term) MarshalText() ([]byte, error) {
	if t.IsZero() {
		return []byte{}, nil
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Term) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*t = Term{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Pair is the current term and the term it is compared against.
type Pair struct {
	Current  Term `json:"current" yaml:"current"`
	Previous Term `json:"previous" yaml:"previous"`
}

// NewPair builds a validated pair. A zero previous term defaults to
// current.Previous().
func NewPair(current, previous Term) (Pair, error) {
	if previous.IsZero() {
		previous = current.Previous()
	}
	p := Pair{Current: current, Previous: previous}
	return p, p.Validate()
}

// Validate checks that both terms are set and that the previous term comes first.
func (p Pair) Validate() error {
	if p.Current.IsZero() || p.Previous.IsZero() {
		return fmt.Errorf("%w: both terms are required", ErrInvalidTermPair)
	}
	if p.Current == p.Previous {
		return fmt.Errorf("%w: %s compared with itself", ErrInvalidTermPair, p.Current)
	}
	if !p.Previous.Before(p.Current) {
		return fmt.Errorf("%w: previous term %s does not precede %s", ErrInvalidTermPair, p.Previous, p.Current)
	}
	return nil
}

func (p Pair) String() string {
	return p.Current.String() + "/" + p.Previous.String()
}
