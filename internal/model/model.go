package model

import "github.com/shopspring/decimal"

type Flow string

const (
	FlowImport Flow = "M"
	FlowExport Flow = "X"
)

// Label returns the human-readable description of the flow direction,
// always relative to the reporting country.
func (f Flow) Label() string {
	switch f {
	case FlowImport:
		return "Imports"
	case FlowExport:
		return "Exports"
	default:
		return string(f)
	}
}

// Short returns the abbreviation used in output file names.
func (f Flow) Short() string {
	if f == FlowImport {
		return "imp"
	}
	return "exp"
}

type Frequency string

const (
	FreqAnnual  Frequency = "A"
	FreqMonthly Frequency = "M"
)

type Source string

const (
	SourceBulk   Source = "bulk"
	SourceRemote Source = "comtrade"
)

type PartnerScope string

const (
	PartnerAll      PartnerScope = "all"
	PartnerSpecific PartnerScope = "specific"
)

// Metric column names, matching the remote API's field naming. The bulk
// dataset reports only MetricPrimaryValue and MetricQuantity.
const (
	MetricPrimaryValue = "primaryValue"
	MetricFOBValue     = "fobValue"
	MetricCIFValue     = "cifValue"
	MetricQuantity     = "qty"
	MetricNetWeight    = "netWgt"
	MetricGrossWeight  = "grossWgt"
)

// MetricColumns is the canonical output column order.
var MetricColumns = []string{
	MetricPrimaryValue,
	MetricFOBValue,
	MetricCIFValue,
	MetricQuantity,
	MetricNetWeight,
	MetricGrossWeight,
}

// Query is a fully resolved, validated selection. It is built exclusively
// by the criteria package and never modified afterwards.
type Query struct {
	Frequency      Frequency
	Source         Source
	Periods        []string // YYYY or YYYYMM tokens, ascending, non-empty
	Classification string
	ReporterCode   string
	ReporterName   string
	ProductCodes   []string // literal HS codes or aggregate tokens (TOTAL, AG2, AG4, AG6)
	Flow           Flow
	PartnerScope   PartnerScope
	PartnerCode    string // set when PartnerScope == PartnerSpecific
	PartnerName    string
	RankMetric     string
}

// TradeRecord is one row yielded by a row provider. Records are read-only
// once produced; a metric name absent from Metrics means "not reported",
// which is distinct from a reported zero.
type TradeRecord struct {
	Period       string
	ReporterCode string
	PartnerCode  string
	PartnerName  string
	ProductCode  string
	ProductDesc  string
	Flow         Flow
	Metrics      map[string]decimal.Decimal
}

type GroupMode string

const (
	ByPartner GroupMode = "partner"
	ByYear    GroupMode = "year"
)

// AggregatedRow is one output line. Share is nil unless the row belongs to
// a ByPartner result with a usable total.
type AggregatedRow struct {
	GroupKey   string
	GroupLabel string
	Metrics    map[string]decimal.Decimal
	Share      *decimal.Decimal
	IsTotal    bool
}

// RankedResult is the terminal artifact of a query execution. Rows are
// ordered by rank with the single total row last. Excluded counts records
// dropped because their grouping key was absent.
type RankedResult struct {
	Rows       []AggregatedRow
	Mode       GroupMode
	RankMetric string
	Query      Query
	Excluded   int
}

// Groups returns the non-total rows.
func (r *RankedResult) Groups() []AggregatedRow {
	groups := make([]AggregatedRow, 0, len(r.Rows))
	for _, row := range r.Rows {
		if !row.IsTotal {
			groups = append(groups, row)
		}
	}
	return groups
}

// Total returns the synthetic total row.
func (r *RankedResult) Total() (AggregatedRow, bool) {
	for _, row := range r.Rows {
		if row.IsTotal {
			return row, true
		}
	}
	return AggregatedRow{}, false
}
