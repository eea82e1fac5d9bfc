// Package normalizer resolves parsed snapshot content onto the quarterly
// timeline and cleans manager names. Quarter resolution tries, in order,
// the section's quarter header, the page's update date, and the stored
// period label. Sections where all three fail are skipped and reported per
// section; a snapshot where nothing resolves fails with an
// UnresolvableQuarterError.
package normalizer

import (
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/domain"
	"github.com/fundtrail/fundtrail/internal/modules/parser"
)

// Normalizer maps parser output to holding records keyed by quarter.
type Normalizer struct {
	log zerolog.Logger
}

// New creates a normalizer.
func New(log zerolog.Logger) *Normalizer {
	return &Normalizer{log: log.With().Str("module", "normalizer").Logger()}
}

var (
	compactQuarterRe = regexp.MustCompile(`(\d{4})\s*[_-]?\s*Q([1-4])`)
	dateHintValueRe  = regexp.MustCompile(`([A-Z][a-z]+ \d{1,2},? \d{4})`)
)

// Result is one snapshot's normalization outcome. Sections whose quarter
// cannot be resolved are absent from Records but stay observable through
// SectionsSkipped and Errors, so a lost quarter always surfaces in the run
// summary.
type Result struct {
	Records         []domain.HoldingRecord
	SectionsSkipped int
	Errors          []error
}

// Normalize converts one snapshot's parse result into holding records. Each
// section resolves its own quarter; sections whose quarter cannot be
// resolved are skipped and reported per section. When no section resolves
// the whole snapshot fails with an UnresolvableQuarterError.
func (n *Normalizer) Normalize(managerID, period string, res *parser.Result) (*Result, error) {
	out := &Result{}

	for _, section := range res.Sections {
		q, ok := n.resolveQuarter(section.QuarterLabel, res.DateHint, period)
		if !ok {
			out.SectionsSkipped++
			out.Errors = append(out.Errors, &domain.UnresolvableQuarterError{
				ManagerID: managerID,
				Period:    period,
				Section:   section.QuarterLabel,
			})
			continue
		}

		seen := make(map[string]bool, len(section.Holdings))
		for _, h := range section.Holdings {
			// Duplicate tickers within one quarter collapse to the first row
			if seen[h.Ticker] {
				continue
			}
			seen[h.Ticker] = true

			out.Records = append(out.Records, domain.HoldingRecord{
				ManagerID:      managerID,
				Ticker:         h.Ticker,
				Quarter:        q,
				Shares:         h.Shares,
				ValueUSD:       h.ValueUSD,
				PctOfPortfolio: h.PctOfPortfolio,
			})
		}
	}

	if len(out.Records) == 0 && len(out.Errors) > 0 {
		return nil, out.Errors[0]
	}
	return out, nil
}

// resolveQuarter applies the fallback chain: explicit quarter label, update
// date, then the snapshot's period label.
func (n *Normalizer) resolveQuarter(label, dateHint, period string) (domain.Quarter, bool) {
	if label != "" {
		if q, err := domain.ParseQuarter(label); err == nil {
			return q, true
		}
	}

	if dateHint != "" {
		if m := dateHintValueRe.FindString(dateHint); m != "" {
			for _, layout := range []string{"January 2, 2006", "January 2 2006"} {
				if t, err := time.Parse(layout, m); err == nil {
					return domain.QuarterOf(t), true
				}
			}
		}
	}

	if q, err := domain.ParseQuarter(period); err == nil {
		return q, true
	}
	if m := compactQuarterRe.FindStringSubmatch(period); m != nil {
		q := domain.Quarter{}
		q.Year = atoi(m[1])
		q.Q = atoi(m[2])
		if q.Valid() {
			return q, true
		}
	}

	return domain.Quarter{}, false
}

func atoi(s string) int {
	v := 0
	for _, c := range s {
		v = v*10 + int(c-'0')
	}
	return v
}

var updatedSuffixRe = regexp.MustCompile(`\s*(?:Updated|As of)\s+.*$`)

// CleanName strips page noise from a raw manager heading and splits it into
// display name and firm. Headings look like "Warren Buffett - Berkshire
// Hathaway Updated 15 Aug 2025".
func CleanName(raw string) (name, firm string) {
	s := strings.TrimSpace(raw)
	s = updatedSuffixRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")

	if idx := strings.Index(s, " - "); idx > 0 {
		return strings.TrimSpace(s[:idx]), strings.TrimSpace(s[idx+3:])
	}
	return s, ""
}

// NameNoise scores a cleaned name variant; lower is cleaner. Used to elect a
// display name deterministically regardless of snapshot processing order.
func NameNoise(s string) int {
	noise := 0
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == ' ', c == '.', c == '\'', c == '-':
		default:
			noise += 10
		}
	}
	if s == "" {
		noise += 1000
	}
	if s == strings.ToUpper(s) && strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") == false {
		// All-caps variants lose to mixed-case ones
		noise += 5
	}
	return noise
}

// ElectDisplayName picks the cleanest variant from a set of aliases. Ties
// break lexically so the election is order independent.
func ElectDisplayName(aliases []string) string {
	name, _ := ElectIdentity(aliases)
	return name
}

// ElectIdentity elects the cleanest alias and returns its cleaned name and
// firm. Ties break lexically, then in favor of a variant that carries a
// firm, so any permutation of the same aliases elects the same identity.
func ElectIdentity(aliases []string) (string, string) {
	bestName, bestFirm := "", ""
	bestNoise := int(^uint(0) >> 1)

	for _, a := range aliases {
		name, firm := CleanName(a)
		noise := NameNoise(name)

		better := noise < bestNoise ||
			(noise == bestNoise && name < bestName) ||
			(noise == bestNoise && name == bestName && firm != "" && (bestFirm == "" || firm < bestFirm))
		if better {
			bestName, bestFirm = name, firm
			bestNoise = noise
		}
	}
	return bestName, bestFirm
}
