package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// Quarter is a calendar fiscal quarter (Q1..Q4 of a year). Quarters are
// totally ordered by Index. The zero value is invalid and reported by IsZero.
type Quarter struct {
	Year int
	Q    int // 1..4
}

var quarterLabelRe = regexp.MustCompile(`Q([1-4])\s+(\d{4})`)

// ParseQuarter extracts a quarter from a period label such as "Q3 2019".
// The label may carry surrounding noise; the first match wins.
func ParseQuarter(label string) (Quarter, error) {
	m := quarterLabelRe.FindStringSubmatch(label)
	if m == nil {
		return Quarter{}, fmt.Errorf("no quarter label in %q", label)
	}
	var q Quarter
	fmt.Sscanf(m[1], "%d", &q.Q)
	fmt.Sscanf(m[2], "%d", &q.Year)
	return q, nil
}

// QuarterOf returns the calendar quarter containing the given date.
func QuarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Q: (int(t.Month())-1)/3 + 1}
}

// IsZero reports whether q is the invalid zero value.
func (q Quarter) IsZero() bool {
	return q.Year == 0 && q.Q == 0
}

// Valid reports whether q denotes a real quarter.
func (q Quarter) Valid() bool {
	return q.Year > 0 && q.Q >= 1 && q.Q <= 4
}

// Index returns a monotonically increasing ordinal suitable for ordering
// and distance arithmetic between quarters.
func (q Quarter) Index() int {
	return q.Year*4 + (q.Q - 1)
}

// Before reports whether q precedes other.
func (q Quarter) Before(other Quarter) bool {
	return q.Index() < other.Index()
}

// Next returns the quarter immediately following q.
func (q Quarter) Next() Quarter {
	if q.Q == 4 {
		return Quarter{Year: q.Year + 1, Q: 1}
	}
	return Quarter{Year: q.Year, Q: q.Q + 1}
}

// EndDate returns the last calendar day of the quarter. Used for price
// lookups at quarter boundaries.
func (q Quarter) EndDate() time.Time {
	lastMonth := time.Month(q.Q * 3)
	// Day 0 of the following month is the last day of lastMonth.
	return time.Date(q.Year, lastMonth+1, 0, 0, 0, 0, 0, time.UTC)
}

// String renders the canonical label form, e.g. "Q3 2019".
func (q Quarter) String() string {
	return fmt.Sprintf("Q%d %d", q.Q, q.Year)
}

// MarshalJSON renders the canonical label form.
func (q Quarter) MarshalJSON() ([]byte, error) {
	return json.Marshal(q.String())
}

// UnmarshalJSON parses the canonical label form.
func (q *Quarter) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseQuarter(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// SortQuarters orders a slice ascending in place and returns it.
func SortQuarters(qs []Quarter) []Quarter {
	for i := 1; i < len(qs); i++ {
		for j := i; j > 0 && qs[j].Before(qs[j-1]); j-- {
			qs[j], qs[j-1] = qs[j-1], qs[j]
		}
	}
	return qs
}
