// Package parser extracts holdings rows out of raw disclosure HTML.
// It is strictly structural: no quarter resolution, no reconciliation.
// Malformed rows are skipped and counted; a missing holdings table is a
// ParseError for the whole snapshot.
package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/fundtrail/fundtrail/internal/domain"
)

// Section is one run of holdings rows under a single quarter header. Pages
// without section headers produce one section with an empty label.
type Section struct {
	QuarterLabel string
	Holdings     []domain.RawHolding
}

// Result is the structural content of one snapshot.
type Result struct {
	ManagerName string // raw page heading, if present
	Sections    []Section
	DateHint    string // raw "Updated ..." / "As of ..." text, if present
	RowsSkipped int    // malformed rows dropped during extraction
}

// Parser turns snapshot HTML into holdings rows.
type Parser struct {
	log zerolog.Logger
}

// New creates a parser.
func New(log zerolog.Logger) *Parser {
	return &Parser{log: log.With().Str("module", "parser").Logger()}
}

var (
	symRe      = regexp.MustCompile(`[?&]sym=([A-Za-z0-9.\-]+)`)
	dateHintRe = regexp.MustCompile(`(?:Updated|As of)\s+[A-Z][a-z]+ \d{1,2},? \d{4}`)
)

// Parse extracts every holdings row from a snapshot. The manager and period
// identify the snapshot in errors only.
func (p *Parser) Parse(managerID, period, html string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &domain.ParseError{ManagerID: managerID, Period: period, Reason: "invalid HTML: " + err.Error()}
	}

	table := findHoldingsTable(doc)
	if table == nil {
		return nil, &domain.ParseError{ManagerID: managerID, Period: period, Reason: "holdings table not found"}
	}

	res := &Result{
		ManagerName: strings.TrimSpace(doc.Find("h1").First().Text()),
		DateHint:    dateHintRe.FindString(doc.Text()),
	}
	if res.ManagerName == "" {
		res.ManagerName = strings.TrimSpace(doc.Find("title").First().Text())
	}

	current := Section{}
	flush := func() {
		if len(current.Holdings) > 0 || current.QuarterLabel != "" {
			res.Sections = append(res.Sections, current)
		}
	}

	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if tr.HasClass("q_chg") {
			// Quarter header row starts a new section
			flush()
			current = Section{QuarterLabel: strings.TrimSpace(tr.Text())}
			return
		}
		if tr.Find("th").Length() > 0 {
			return
		}

		h, ok := p.parseRow(tr)
		if !ok {
			res.RowsSkipped++
			return
		}
		current.Holdings = append(current.Holdings, h)
	})
	flush()

	total := 0
	for _, s := range res.Sections {
		total += len(s.Holdings)
	}
	if total == 0 && res.RowsSkipped == 0 {
		return nil, &domain.ParseError{ManagerID: managerID, Period: period, Reason: "holdings table has no data rows"}
	}

	p.log.Debug().
		Str("manager", managerID).
		Str("period", period).
		Int("holdings", total).
		Int("skipped", res.RowsSkipped).
		Msg("Parsed snapshot")

	return res, nil
}

// findHoldingsTable returns the table#grid selection, falling back to the
// first table whose header mentions stock or portfolio columns.
func findHoldingsTable(doc *goquery.Document) *goquery.Selection {
	if grid := doc.Find("table#grid"); grid.Length() > 0 {
		return grid.First()
	}

	var found *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, tbl *goquery.Selection) bool {
		header := strings.ToLower(tbl.Find("th").Text())
		if strings.Contains(header, "stock") || strings.Contains(header, "portfolio") {
			found = tbl
			return false
		}
		return true
	})
	return found
}

// parseRow extracts one holding from a data row. The history layout prefixes
// each row with a td.hist cell, shifting every column right by one.
func (p *Parser) parseRow(tr *goquery.Selection) (domain.RawHolding, bool) {
	cells := tr.Find("td")
	offset := 0
	if cells.Length() > 0 && cells.First().HasClass("hist") {
		offset = 1
	}
	if cells.Length() < offset+6 {
		return domain.RawHolding{}, false
	}

	stock := cells.Eq(offset)
	ticker := extractTicker(stock)
	if ticker == "" {
		return domain.RawHolding{}, false
	}

	h := domain.RawHolding{
		Ticker:        ticker,
		Company:       extractCompany(stock),
		ActivityLabel: strings.TrimSpace(cells.Eq(offset + 2).Text()),
	}

	var ok bool
	if h.PctOfPortfolio, ok = parseFloat(cells.Eq(offset + 1).Text()); !ok {
		return domain.RawHolding{}, false
	}
	if h.Shares, ok = parseInt(cells.Eq(offset + 3).Text()); !ok {
		return domain.RawHolding{}, false
	}
	// Reported price and value are informational; missing values become zero.
	h.ReportedPrice, _ = parseFloat(cells.Eq(offset + 4).Text())
	h.ValueUSD, _ = parseFloat(cells.Eq(offset + 5).Text())

	return h, true
}

// extractTicker takes the symbol from the stock link's sym= query parameter,
// falling back to the text before the company separator.
func extractTicker(stock *goquery.Selection) string {
	href := stock.Find("a").AttrOr("href", "")
	if m := symRe.FindStringSubmatch(href); m != nil {
		return strings.ToUpper(m[1])
	}

	text := strings.TrimSpace(stock.Text())
	if idx := strings.Index(text, " - "); idx > 0 {
		return strings.ToUpper(strings.TrimSpace(text[:idx]))
	}
	if fields := strings.Fields(text); len(fields) == 1 {
		return strings.ToUpper(fields[0])
	}
	return ""
}

// extractCompany prefers the nested span, falling back to the text after the
// ticker separator.
func extractCompany(stock *goquery.Selection) string {
	if span := stock.Find("span"); span.Length() > 0 {
		if name := strings.TrimSpace(span.First().Text()); name != "" {
			return name
		}
	}

	text := strings.TrimSpace(stock.Text())
	if idx := strings.Index(text, " - "); idx > 0 {
		return strings.TrimSpace(text[idx+3:])
	}
	return text
}

// parseFloat converts a display value ("$1,234.56", "12.3%") to a float.
// An empty or dash cell is zero, anything else malformed is a failure.
func parseFloat(s string) (float64, bool) {
	s = cleanNumeric(s)
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseInt converts a share count. A negative count is malformed, not data.
func parseInt(s string) (int64, bool) {
	s = cleanNumeric(s)
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some sources render share counts with decimals
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, false
		}
		v = int64(f)
	}
	if v < 0 {
		return 0, false
	}
	return v, true
}

func cleanNumeric(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "%", "")
	if s == "-" || s == "—" || strings.EqualFold(s, "n/a") {
		return ""
	}
	return s
}
