package criteria

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/reference"
)

func testBuilder(t *testing.T) *Builder {
	t.Helper()
	catalog, err := reference.NewCatalog(
		[]reference.Entry{
			{Code: "818", Name: "Egypt"},
			{Code: "170", Name: "Colombia"},
			{Code: "842", Name: "USA"},
		},
		[]reference.Entry{
			{Code: "27", Name: "Mineral fuels"},
			{Code: "2701", Name: "Coal"},
		},
	)
	require.NoError(t, err)
	return NewBuilder(catalog, Coverage{MinYear: 1995, MaxYear: 2023})
}

func TestParsePeriods_Annual(t *testing.T) {
	b := testBuilder(t)

	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "single year", input: "2021", want: []string{"2021"}},
		{name: "range", input: "2018-2020", want: []string{"2018", "2019", "2020"}},
		{name: "list with range and duplicate", input: "2020, 2018-2020", want: []string{"2018", "2019", "2020"}},
		{name: "unordered list is sorted", input: "2022,2019", want: []string{"2019", "2022"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := b.ParsePeriods(tc.input, model.FreqAnnual, model.SourceBulk)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestParsePeriods_Monthly(t *testing.T) {
	b := testBuilder(t)

	got, err := b.ParsePeriods("202211-202302", model.FreqMonthly, model.SourceRemote)
	require.NoError(t, err)
	require.Equal(t, []string{"202211", "202212", "202301", "202302"}, got)

	got, err = b.ParsePeriods("202101, 202012", model.FreqMonthly, model.SourceRemote)
	require.NoError(t, err)
	require.Equal(t, []string{"202012", "202101"}, got)
}

func TestParsePeriods_Invalid(t *testing.T) {
	b := testBuilder(t)

	tests := []struct {
		name  string
		input string
		freq  model.Frequency
	}{
		{name: "not a year", input: "abcd", freq: model.FreqAnnual},
		{name: "short year", input: "218", freq: model.FreqAnnual},
		{name: "backwards range", input: "2020-2018", freq: model.FreqAnnual},
		{name: "month out of range", input: "202113", freq: model.FreqMonthly},
		{name: "annual token for monthly query", input: "2021", freq: model.FreqMonthly},
		{name: "empty", input: " , ", freq: model.FreqAnnual},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.ParsePeriods(tc.input, tc.freq, model.SourceRemote)
			var invalidErr *InvalidCriteriaError
			require.ErrorAs(t, err, &invalidErr)
		})
	}
}

func TestParsePeriods_BulkCoverage(t *testing.T) {
	b := testBuilder(t)

	_, err := b.ParsePeriods("1990", model.FreqAnnual, model.SourceBulk)
	var invalidErr *InvalidCriteriaError
	require.ErrorAs(t, err, &invalidErr)
	require.Contains(t, invalidErr.Error(), "1995-2023")

	// The remote source is not bound by bulk coverage.
	got, err := b.ParsePeriods("1990", model.FreqAnnual, model.SourceRemote)
	require.NoError(t, err)
	require.Equal(t, []string{"1990"}, got)
}

func TestParseRankMetric(t *testing.T) {
	metric, err := ParseRankMetric("v", model.SourceBulk)
	require.NoError(t, err)
	require.Equal(t, model.MetricPrimaryValue, metric)

	// Empty input takes the default the prompt advertises.
	for _, source := range []model.Source{model.SourceBulk, model.SourceRemote} {
		metric, err = ParseRankMetric("  ", source)
		require.NoError(t, err)
		require.Equal(t, model.MetricPrimaryValue, metric)
	}

	metric, err = ParseRankMetric("fobvalue", model.SourceRemote)
	require.NoError(t, err)
	require.Equal(t, model.MetricFOBValue, metric)

	metric, err = ParseRankMetric("NW", model.SourceRemote)
	require.NoError(t, err)
	require.Equal(t, model.MetricNetWeight, metric)

	_, err = ParseRankMetric("fob", model.SourceBulk)
	require.Error(t, err)

	_, err = ParseRankMetric("bogus", model.SourceRemote)
	require.Error(t, err)
}

func TestParsePartner(t *testing.T) {
	b := testBuilder(t)

	for _, input := range []string{"A", "all", "World", "0"} {
		scope, _, err := b.ParsePartner(input)
		require.NoError(t, err)
		require.Equal(t, model.PartnerAll, scope)
	}

	scope, match, err := b.ParsePartner("Colombia")
	require.NoError(t, err)
	require.Equal(t, model.PartnerSpecific, scope)
	require.Equal(t, "170", match.Code)

	_, _, err = b.ParsePartner("Atlantis")
	require.Error(t, err)
}

func TestBuild(t *testing.T) {
	b := testBuilder(t)

	query, err := b.Build(Raw{
		Frequency:  "A",
		Source:     "B",
		Periods:    "2021-2022",
		Reporter:   "Egypt",
		Products:   "27",
		Direction:  "M",
		Partner:    "all",
		RankMetric: "v",
	})
	require.NoError(t, err)
	require.Equal(t, model.FreqAnnual, query.Frequency)
	require.Equal(t, model.SourceBulk, query.Source)
	require.Equal(t, []string{"2021", "2022"}, query.Periods)
	require.Equal(t, "HS", query.Classification)
	require.Equal(t, "818", query.ReporterCode)
	require.Equal(t, "Egypt", query.ReporterName)
	require.Equal(t, []string{"27"}, query.ProductCodes)
	require.Equal(t, model.FlowImport, query.Flow)
	require.Equal(t, model.PartnerAll, query.PartnerScope)
	require.Equal(t, model.MetricPrimaryValue, query.RankMetric)
}

func TestBuild_BulkMonthlyRejected(t *testing.T) {
	b := testBuilder(t)

	_, err := b.Build(Raw{
		Frequency:  "M",
		Source:     "B",
		Periods:    "202101",
		Reporter:   "Egypt",
		Products:   "27",
		Direction:  "X",
		Partner:    "all",
		RankMetric: "v",
	})
	var invalidErr *InvalidCriteriaError
	require.ErrorAs(t, err, &invalidErr)
	require.Contains(t, invalidErr.Error(), "annual only")
}

func TestBuild_SpecificPartner(t *testing.T) {
	b := testBuilder(t)

	query, err := b.Build(Raw{
		Frequency:  "A",
		Source:     "C",
		Periods:    "2020",
		Reporter:   "818",
		Products:   "TOTAL",
		Direction:  "X",
		Partner:    "USA",
		RankMetric: "cif",
	})
	require.NoError(t, err)
	require.Equal(t, model.PartnerSpecific, query.PartnerScope)
	require.Equal(t, "842", query.PartnerCode)
	require.Equal(t, "USA", query.PartnerName)
	require.Equal(t, []string{"TOTAL"}, query.ProductCodes)
	require.Equal(t, model.MetricCIFValue, query.RankMetric)
}
