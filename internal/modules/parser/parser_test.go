package parser

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundtrail/fundtrail/internal/domain"
)

const gridPage = `<!DOCTYPE html>
<html>
<head><title>Warren Buffett - Berkshire Hathaway</title></head>
<body>
<h1>Warren Buffett - Berkshire Hathaway Updated August 14, 2025</h1>
<table id="grid">
<tr><th>History</th><th>Stock</th><th>% of Portfolio</th><th>Recent Activity</th><th>Shares</th><th>Reported Price</th><th>Value</th></tr>
<tr class="q_chg"><td colspan="7">Q3 2019</td></tr>
<tr>
  <td class="hist">+</td>
  <td><a href="/insider?sym=AAPL">AAPL</a><span>Apple Inc.</span></td>
  <td>25.96%</td>
  <td>Reduce 0.31%</td>
  <td>248,838,679</td>
  <td>$223.97</td>
  <td>$55,732,611,000</td>
</tr>
<tr>
  <td class="hist">+</td>
  <td><a href="/insider?sym=BAC">BAC</a><span>Bank of America Corp.</span></td>
  <td>12.62%</td>
  <td></td>
  <td>927,248,600</td>
  <td>$29.17</td>
  <td>$27,047,841,000</td>
</tr>
<tr class="q_chg"><td colspan="7">Q2 2019</td></tr>
<tr>
  <td class="hist">+</td>
  <td><a href="/insider?sym=AAPL">AAPL</a><span>Apple Inc.</span></td>
  <td>23.74%</td>
  <td></td>
  <td>249,589,329</td>
  <td>$197.92</td>
  <td>$49,399,919,000</td>
</tr>
</table>
</body>
</html>`

func newTestParser() *Parser {
	return New(zerolog.New(nil).Level(zerolog.Disabled))
}

func TestParse_GridPage(t *testing.T) {
	res, err := newTestParser().Parse("berkshire", "2019_Q3", gridPage)
	require.NoError(t, err)

	assert.Equal(t, "Warren Buffett - Berkshire Hathaway Updated August 14, 2025", res.ManagerName)
	assert.Equal(t, "Updated August 14, 2025", res.DateHint)
	assert.Equal(t, 0, res.RowsSkipped)

	require.Len(t, res.Sections, 2)
	assert.Equal(t, "Q3 2019", res.Sections[0].QuarterLabel)
	assert.Equal(t, "Q2 2019", res.Sections[1].QuarterLabel)

	require.Len(t, res.Sections[0].Holdings, 2)
	aapl := res.Sections[0].Holdings[0]
	assert.Equal(t, "AAPL", aapl.Ticker)
	assert.Equal(t, "Apple Inc.", aapl.Company)
	assert.InDelta(t, 25.96, aapl.PctOfPortfolio, 1e-9)
	assert.Equal(t, "Reduce 0.31%", aapl.ActivityLabel)
	assert.Equal(t, int64(248838679), aapl.Shares)
	assert.InDelta(t, 223.97, aapl.ReportedPrice, 1e-9)
	assert.InDelta(t, 55732611000, aapl.ValueUSD, 1e-3)

	require.Len(t, res.Sections[1].Holdings, 1)
	assert.Equal(t, "AAPL", res.Sections[1].Holdings[0].Ticker)
}

func TestParse_NoHistoryColumn(t *testing.T) {
	// Same layout without the td.hist prefix; the column offset must adapt.
	page := `<html><body><table id="grid">
<tr><th>Stock</th><th>% of Portfolio</th><th>Activity</th><th>Shares</th><th>Price</th><th>Value</th></tr>
<tr>
  <td><a href="/insider?sym=KO">KO</a><span>Coca-Cola Co.</span></td>
  <td>9.21%</td>
  <td>Add 1.00%</td>
  <td>400,000,000</td>
  <td>$54.37</td>
  <td>$21,748,000,000</td>
</tr>
</table></body></html>`

	res, err := newTestParser().Parse("berkshire", "2019_Q3", page)
	require.NoError(t, err)
	require.Len(t, res.Sections, 1)
	require.Len(t, res.Sections[0].Holdings, 1)

	ko := res.Sections[0].Holdings[0]
	assert.Equal(t, "KO", ko.Ticker)
	assert.Equal(t, int64(400000000), ko.Shares)
}

func TestParse_TickerFromTextFallback(t *testing.T) {
	// No sym= link; the ticker comes from the text before the separator.
	page := `<html><body><table id="grid">
<tr><th>Stock</th><th>% of Portfolio</th><th>Activity</th><th>Shares</th><th>Price</th><th>Value</th></tr>
<tr>
  <td>brk.b - Berkshire Hathaway Inc.</td>
  <td>4.00%</td>
  <td></td>
  <td>1,000</td>
  <td>$200.00</td>
  <td>$200,000</td>
</tr>
</table></body></html>`

	res, err := newTestParser().Parse("mgr", "2019_Q3", page)
	require.NoError(t, err)
	require.Len(t, res.Sections[0].Holdings, 1)
	assert.Equal(t, "BRK.B", res.Sections[0].Holdings[0].Ticker)
	assert.Equal(t, "Berkshire Hathaway Inc.", res.Sections[0].Holdings[0].Company)
}

func TestParse_MalformedRowsSkippedAndCounted(t *testing.T) {
	page := `<html><body><table id="grid">
<tr><th>Stock</th><th>% of Portfolio</th><th>Activity</th><th>Shares</th><th>Price</th><th>Value</th></tr>
<tr>
  <td><a href="/insider?sym=AAPL">AAPL</a></td>
  <td>25.96%</td><td></td><td>100</td><td>$1.00</td><td>$100</td>
</tr>
<tr><td colspan="6">advertisement</td></tr>
<tr>
  <td><a href="/insider?sym=XOM">XOM</a></td>
  <td>not-a-number</td><td></td><td>100</td><td>$1.00</td><td>$100</td>
</tr>
</table></body></html>`

	res, err := newTestParser().Parse("mgr", "2019_Q3", page)
	require.NoError(t, err)

	total := 0
	for _, s := range res.Sections {
		total += len(s.Holdings)
	}
	assert.Equal(t, 1, total, "only the well-formed row survives")
	assert.Equal(t, 2, res.RowsSkipped)
}

func TestParse_NegativeShareCountIsMalformed(t *testing.T) {
	page := `<html><body><table id="grid">
<tr><th>Stock</th><th>% of Portfolio</th><th>Activity</th><th>Shares</th><th>Price</th><th>Value</th></tr>
<tr>
  <td><a href="/insider?sym=AAPL">AAPL</a></td>
  <td>25.96%</td><td></td><td>-248,838,679</td><td>$1.00</td><td>$100</td>
</tr>
<tr>
  <td><a href="/insider?sym=BAC">BAC</a></td>
  <td>12.62%</td><td></td><td>100</td><td>$1.00</td><td>$100</td>
</tr>
</table></body></html>`

	res, err := newTestParser().Parse("mgr", "2019_Q3", page)
	require.NoError(t, err)

	require.Len(t, res.Sections[0].Holdings, 1)
	assert.Equal(t, "BAC", res.Sections[0].Holdings[0].Ticker)
	assert.Equal(t, 1, res.RowsSkipped, "negative share counts never become holdings")
}

func TestParse_DashValuesAreZero(t *testing.T) {
	page := `<html><body><table id="grid">
<tr><th>Stock</th><th>% of Portfolio</th><th>Activity</th><th>Shares</th><th>Price</th><th>Value</th></tr>
<tr>
  <td><a href="/insider?sym=AAPL">AAPL</a></td>
  <td>25.96%</td><td></td><td>100</td><td>-</td><td>n/a</td>
</tr>
</table></body></html>`

	res, err := newTestParser().Parse("mgr", "2019_Q3", page)
	require.NoError(t, err)
	h := res.Sections[0].Holdings[0]
	assert.Equal(t, 0.0, h.ReportedPrice)
	assert.Equal(t, 0.0, h.ValueUSD)
}

func TestParse_MissingTableIsParseError(t *testing.T) {
	_, err := newTestParser().Parse("mgr", "2019_Q3", "<html><body><p>maintenance</p></body></html>")
	require.Error(t, err)

	var parseErr *domain.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "mgr", parseErr.ManagerID)
	assert.Equal(t, "2019_Q3", parseErr.Period)
}

func TestParse_HeaderKeywordFallback(t *testing.T) {
	// No table#grid; the parser falls back to the first table whose header
	// mentions stock columns.
	page := `<html><body>
<table><tr><th>Nav</th></tr><tr><td>home</td></tr></table>
<table>
<tr><th>Stock</th><th>% of Portfolio</th><th>Activity</th><th>Shares</th><th>Price</th><th>Value</th></tr>
<tr>
  <td><a href="/insider?sym=GOOG">GOOG</a></td>
  <td>3.00%</td><td></td><td>50</td><td>$1,200.00</td><td>$60,000</td>
</tr>
</table></body></html>`

	res, err := newTestParser().Parse("mgr", "2019_Q3", page)
	require.NoError(t, err)
	require.Len(t, res.Sections[0].Holdings, 1)
	assert.Equal(t, "GOOG", res.Sections[0].Holdings[0].Ticker)
}
