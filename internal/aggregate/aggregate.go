// Package aggregate folds raw trade records into ranked per-group sums.
// Grouping is either by partner country (one row per partner) or by year
// (a time series for a single partner). Sums are exact decimals; a metric
// a group never reported stays absent rather than becoming zero.
package aggregate

import (
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
)

const totalKey = "TOTAL"

// Aggregate groups records per mode, sums every metric present, ranks the
// groups by query.RankMetric and appends a single total row last. Records
// with an empty group key are counted in Excluded and dropped.
func Aggregate(records []model.TradeRecord, mode model.GroupMode, query model.Query) *model.RankedResult {
	type group struct {
		key     string
		label   string
		metrics map[string]decimal.Decimal
	}

	groups := make(map[string]*group)
	excluded := 0

	for _, record := range records {
		key, label := groupKey(record, mode)
		if key == "" {
			excluded++
			continue
		}
		g, ok := groups[key]
		if !ok {
			g = &group{key: key, label: label, metrics: make(map[string]decimal.Decimal)}
			groups[key] = g
		}
		if g.label == "" && label != "" {
			g.label = label
		}
		for metric, value := range record.Metrics {
			g.metrics[metric] = g.metrics[metric].Add(value)
		}
	}

	rows := make([]model.AggregatedRow, 0, len(groups)+1)
	for _, g := range groups {
		rows = append(rows, model.AggregatedRow{
			GroupKey:   g.key,
			GroupLabel: g.label,
			Metrics:    g.metrics,
		})
	}
	rank(rows, query.RankMetric)

	total := totalRow(rows, mode)
	if mode == model.ByPartner {
		applyShares(rows, total, query.RankMetric)
	}
	rows = append(rows, total)

	return &model.RankedResult{
		Rows:       rows,
		Mode:       mode,
		RankMetric: query.RankMetric,
		Query:      query,
		Excluded:   excluded,
	}
}

func groupKey(record model.TradeRecord, mode model.GroupMode) (string, string) {
	switch mode {
	case model.ByYear:
		if len(record.Period) < 4 {
			return "", ""
		}
		year := record.Period[:4]
		return year, year
	default:
		return record.PartnerCode, record.PartnerName
	}
}

// rank orders rows descending by the rank metric. Groups that never
// reported the metric sort after all that did; ties and absent groups fall
// back to ascending group key, numerically when both keys are numeric.
func rank(rows []model.AggregatedRow, metric string) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, aOK := rows[i].Metrics[metric]
		b, bOK := rows[j].Metrics[metric]
		switch {
		case aOK && !bOK:
			return true
		case !aOK && bOK:
			return false
		case aOK && bOK && !a.Equal(b):
			return a.GreaterThan(b)
		default:
			return keyLess(rows[i].GroupKey, rows[j].GroupKey)
		}
	})
}

func keyLess(a, b string) bool {
	ai, aErr := strconv.Atoi(a)
	bi, bErr := strconv.Atoi(b)
	if aErr == nil && bErr == nil {
		return ai < bi
	}
	return a < b
}

func totalRow(rows []model.AggregatedRow, mode model.GroupMode) model.AggregatedRow {
	label := "Total"
	if mode == model.ByPartner {
		label = "World (calculated)"
	}
	metrics := make(map[string]decimal.Decimal)
	for _, row := range rows {
		for metric, value := range row.Metrics {
			metrics[metric] = metrics[metric].Add(value)
		}
	}
	return model.AggregatedRow{
		GroupKey:   totalKey,
		GroupLabel: label,
		Metrics:    metrics,
		IsTotal:    true,
	}
}

// applyShares fills each partner row's share of the calculated world total
// for the rank metric. Shares stay nil when the total is absent or zero.
func applyShares(rows []model.AggregatedRow, total model.AggregatedRow, metric string) {
	whole, ok := total.Metrics[metric]
	if !ok || whole.IsZero() {
		return
	}
	for i := range rows {
		value, ok := rows[i].Metrics[metric]
		if !ok {
			continue
		}
		share := value.Div(whole)
		rows[i].Share = &share
	}
}

// ZeroValueGroups reports the non-total groups whose rank metric is present
// but exactly zero, a common sign of suppressed or placeholder reporting.
func ZeroValueGroups(result *model.RankedResult) []model.AggregatedRow {
	var flagged []model.AggregatedRow
	for _, row := range result.Groups() {
		if value, ok := row.Metrics[result.RankMetric]; ok && value.IsZero() {
			flagged = append(flagged, row)
		}
	}
	return flagged
}
