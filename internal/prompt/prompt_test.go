package prompt

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/criteria"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/providers"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/reference"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/report"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/store"
)

type stubProvider struct {
	records []model.TradeRecord
	err     error
	queries []model.Query
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Fetch(ctx context.Context, query model.Query) ([]model.TradeRecord, error) {
	s.queries = append(s.queries, query)
	return s.records, s.err
}

func testSession(t *testing.T, input string, stub *stubProvider) (*Session, *bytes.Buffer) {
	t.Helper()
	catalog, err := reference.NewCatalog(
		[]reference.Entry{
			{Code: "818", Name: "Egypt"},
			{Code: "76", Name: "Brazil"},
		},
		[]reference.Entry{
			{Code: "27", Name: "Mineral fuels"},
		},
	)
	require.NoError(t, err)

	emitter, err := report.NewEmitter(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)

	builder := criteria.NewBuilder(catalog, criteria.Coverage{MinYear: 1995, MaxYear: 2023})
	out := &bytes.Buffer{}
	session := NewSession(
		strings.NewReader(input),
		out,
		builder,
		catalog,
		map[model.Source]providers.RowProvider{model.SourceBulk: stub},
		emitter,
		&store.NopStore{},
	)
	return session, out
}

func tradeRecord(partnerCode, partnerName string, value int64) model.TradeRecord {
	return model.TradeRecord{
		Period:      "2021",
		PartnerCode: partnerCode,
		PartnerName: partnerName,
		Metrics: map[string]decimal.Decimal{
			model.MetricPrimaryValue: decimal.NewFromInt(value),
		},
	}
}

func TestRun_FullSession(t *testing.T) {
	stub := &stubProvider{records: []model.TradeRecord{
		tradeRecord("76", "Brazil", 100),
	}}
	// The metric answer is left blank to take the advertised default.
	input := "A\nB\n2021\n\nEgypt\n27\nM\nall\n\nn\n"
	session, out := testSession(t, input, stub)

	require.NoError(t, session.Run(context.Background()))

	require.Len(t, stub.queries, 1)
	query := stub.queries[0]
	require.Equal(t, "818", query.ReporterCode)
	require.Equal(t, []string{"2021"}, query.Periods)
	require.Equal(t, model.PartnerAll, query.PartnerScope)
	require.Equal(t, model.MetricPrimaryValue, query.RankMetric)

	text := out.String()
	require.Contains(t, text, "Fetched 1 records across 1 groups.")
	require.Contains(t, text, "Wrote ")
	require.Contains(t, text, "Goodbye.")
}

func TestRun_InvalidInputReasksSameQuestion(t *testing.T) {
	stub := &stubProvider{records: []model.TradeRecord{
		tradeRecord("76", "Brazil", 100),
	}}
	// Frequency and period are wrong once each before being corrected.
	input := "Z\nA\nB\nabcd\n2021\n\nEgypt\n27\nM\nall\nv\nn\n"
	session, out := testSession(t, input, stub)

	require.NoError(t, session.Run(context.Background()))
	require.Len(t, stub.queries, 1)

	text := out.String()
	require.Contains(t, text, "Invalid input:")
	require.Contains(t, text, "not a 4-digit year")
}

func TestRun_FuzzyReporterIsEchoed(t *testing.T) {
	stub := &stubProvider{}
	input := "A\nB\n2021\n\nEgipt\n27\nM\nall\nv\nn\n"
	session, out := testSession(t, input, stub)

	require.NoError(t, session.Run(context.Background()))
	require.Contains(t, out.String(), `Interpreted "Egipt" as Egypt`)
}

func TestRun_UnknownCountryShowsSuggestions(t *testing.T) {
	stub := &stubProvider{records: []model.TradeRecord{
		tradeRecord("76", "Brazil", 100),
	}}
	input := "A\nB\n2021\n\nXanadu\nEgypt\n27\nM\nall\nv\nn\n"
	session, out := testSession(t, input, stub)

	require.NoError(t, session.Run(context.Background()))
	text := out.String()
	require.Contains(t, text, `Not found: "Xanadu"`)
	require.Contains(t, text, "Did you mean:")
}

func TestRun_ProviderFailureDoesNotEndSession(t *testing.T) {
	stub := &stubProvider{err: &providers.ProviderError{Status: 500, Message: "backend down"}}
	input := "A\nB\n2021\n\nEgypt\n27\nM\nall\nv\nn\n"
	session, out := testSession(t, input, stub)

	require.NoError(t, session.Run(context.Background()))
	text := out.String()
	require.Contains(t, text, "Request failed (HTTP 500): backend down")
	require.Contains(t, text, "Run another analysis?")
}

func TestRun_EOFEndsCleanly(t *testing.T) {
	stub := &stubProvider{}
	session, _ := testSession(t, "A\nB\n", stub)

	require.NoError(t, session.Run(context.Background()))
	require.Empty(t, stub.queries)
}

func TestRun_RunAnotherLoops(t *testing.T) {
	stub := &stubProvider{records: []model.TradeRecord{
		tradeRecord("76", "Brazil", 100),
	}}
	one := "A\nB\n2021\n\nEgypt\n27\nM\nall\nv\n"
	input := one + "y\n" + one + "n\n"
	session, _ := testSession(t, input, stub)

	require.NoError(t, session.Run(context.Background()))
	require.Len(t, stub.queries, 2)
}

func TestRun_ZeroValuePartnerWarning(t *testing.T) {
	stub := &stubProvider{records: []model.TradeRecord{
		tradeRecord("76", "Brazil", 0),
		tradeRecord("818", "Egypt", 50),
	}}
	input := "A\nB\n2021\n\nEgypt\n27\nM\nall\nv\nn\n"
	session, out := testSession(t, input, stub)

	require.NoError(t, session.Run(context.Background()))
	text := out.String()
	require.Contains(t, text, "Warning: 1 group(s) report a zero primaryValue")
	require.Contains(t, text, "Brazil (76)")
}
