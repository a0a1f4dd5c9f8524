package criteria

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/reference"
)

// InvalidCriteriaError reports malformed or contradictory user input for a
// single field. Recoverable: the prompt loop re-asks the offending field.
type InvalidCriteriaError struct {
	Field  string
	Reason string
}

func (e *InvalidCriteriaError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &InvalidCriteriaError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Raw holds the user-entered selection strings before validation.
type Raw struct {
	Frequency      string
	Source         string
	Periods        string
	Classification string
	Reporter       string
	Products       string
	Direction      string
	Partner        string
	RankMetric     string
}

// Coverage is the year span the bulk dataset is known to cover.
type Coverage struct {
	MinYear int
	MaxYear int
}

// Builder turns Raw input into a validated model.Query. Reporter and
// partner lookups delegate to the reference catalog.
type Builder struct {
	catalog  *reference.Catalog
	coverage Coverage
}

func NewBuilder(catalog *reference.Catalog, coverage Coverage) *Builder {
	return &Builder{catalog: catalog, coverage: coverage}
}

// Build validates every field and their cross-field rules, returning an
// immutable Query or the first failure encountered.
func (b *Builder) Build(raw Raw) (model.Query, error) {
	freq, err := ParseFrequency(raw.Frequency)
	if err != nil {
		return model.Query{}, err
	}
	source, err := ParseSource(raw.Source)
	if err != nil {
		return model.Query{}, err
	}
	if source == model.SourceBulk && freq == model.FreqMonthly {
		return model.Query{}, invalid("source", "the bulk dataset is annual only; choose the remote source for monthly data")
	}

	periods, err := b.ParsePeriods(raw.Periods, freq, source)
	if err != nil {
		return model.Query{}, err
	}

	classification, err := ParseClassification(raw.Classification)
	if err != nil {
		return model.Query{}, err
	}

	reporter, err := b.catalog.ResolveCountry(raw.Reporter)
	if err != nil {
		return model.Query{}, err
	}

	products, err := b.catalog.ResolveProducts(raw.Products, classification)
	if err != nil {
		return model.Query{}, err
	}
	productCodes := make([]string, 0, len(products))
	for _, p := range products {
		productCodes = append(productCodes, p.Code)
	}

	flow, err := ParseDirection(raw.Direction)
	if err != nil {
		return model.Query{}, err
	}

	scope, partner, err := b.ParsePartner(raw.Partner)
	if err != nil {
		return model.Query{}, err
	}

	rankMetric, err := ParseRankMetric(raw.RankMetric, source)
	if err != nil {
		return model.Query{}, err
	}

	query := model.Query{
		Frequency:      freq,
		Source:         source,
		Periods:        periods,
		Classification: classification,
		ReporterCode:   reporter.Code,
		ReporterName:   reporter.Name,
		ProductCodes:   productCodes,
		Flow:           flow,
		PartnerScope:   scope,
		RankMetric:     rankMetric,
	}
	if scope == model.PartnerSpecific {
		query.PartnerCode = partner.Code
		query.PartnerName = partner.Name
	}
	return query, nil
}

func ParseFrequency(input string) (model.Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "A", "ANNUAL":
		return model.FreqAnnual, nil
	case "M", "MONTHLY":
		return model.FreqMonthly, nil
	default:
		return "", invalid("frequency", "%q is not A (Annual) or M (Monthly)", input)
	}
}

func ParseSource(input string) (model.Source, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "B", "BULK", "BACI":
		return model.SourceBulk, nil
	case "C", "COMTRADE", "REMOTE":
		return model.SourceRemote, nil
	default:
		return "", invalid("source", "%q is not B (bulk dataset) or C (remote API)", input)
	}
}

func ParseClassification(input string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(input))
	if trimmed == "" {
		return "HS", nil
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", invalid("classification", "%q is not a classification identifier", input)
		}
	}
	return trimmed, nil
}

func ParseDirection(input string) (model.Flow, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "M", "IMPORT", "IMPORTS":
		return model.FlowImport, nil
	case "X", "EXPORT", "EXPORTS":
		return model.FlowExport, nil
	default:
		return "", invalid("direction", "%q is not M (Imports) or X (Exports)", input)
	}
}

// ParsePartner interprets the partner selection. "All", "A", "World" and
// "0" select all partners without a catalog lookup; anything else must
// resolve to a specific partner country.
func (b *Builder) ParsePartner(input string) (model.PartnerScope, reference.CountryMatch, error) {
	switch strings.ToUpper(strings.TrimSpace(input)) {
	case "A", "ALL", "WORLD", "0":
		return model.PartnerAll, reference.CountryMatch{}, nil
	}
	match, err := b.catalog.ResolveCountry(input)
	if err != nil {
		return "", reference.CountryMatch{}, err
	}
	return model.PartnerSpecific, match, nil
}

var metricAliases = map[string]string{
	"V":        model.MetricPrimaryValue,
	"VALUE":    model.MetricPrimaryValue,
	"PV":       model.MetricPrimaryValue,
	"FOB":      model.MetricFOBValue,
	"CIF":      model.MetricCIFValue,
	"Q":        model.MetricQuantity,
	"QTY":      model.MetricQuantity,
	"QUANTITY": model.MetricQuantity,
	"NW":       model.MetricNetWeight,
	"WEIGHT":   model.MetricNetWeight,
	"GW":       model.MetricGrossWeight,
}

// ParseRankMetric maps a metric shortcut or column name to the canonical
// metric column; empty input defaults to the primary value. The bulk
// dataset only reports value and quantity.
func ParseRankMetric(input string, source model.Source) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return model.MetricPrimaryValue, nil
	}
	metric, ok := metricAliases[strings.ToUpper(trimmed)]
	if !ok {
		for _, column := range model.MetricColumns {
			if strings.EqualFold(column, trimmed) {
				metric = column
				ok = true
				break
			}
		}
	}
	if !ok {
		return "", invalid("metric", "%q is not a known metric (V, FOB, CIF, Q, NW, GW)", input)
	}
	if source == model.SourceBulk && metric != model.MetricPrimaryValue && metric != model.MetricQuantity {
		return "", invalid("metric", "the bulk dataset reports V (value) and Q (quantity) only")
	}
	return metric, nil
}

// ParsePeriods expands a period selection into ordered distinct tokens.
// Annual input accepts YYYY, YYYY-YYYY ranges and comma-separated lists of
// either; monthly input accepts YYYYMM and YYYYMM-YYYYMM ranges, expanded
// across year boundaries. Bulk queries are additionally bounded by the
// dataset coverage span.
func (b *Builder) ParsePeriods(input string, freq model.Frequency, source model.Source) ([]string, error) {
	parts := strings.Split(input, ",")
	tokens := make([]string, 0, len(parts))
	seen := make(map[string]bool)

	for _, part := range parts {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		expanded, err := expandPeriodToken(token, freq)
		if err != nil {
			return nil, err
		}
		for _, period := range expanded {
			if seen[period] {
				continue
			}
			seen[period] = true
			tokens = append(tokens, period)
		}
	}
	if len(tokens) == 0 {
		return nil, invalid("period", "no period given")
	}
	sort.Strings(tokens)

	if source == model.SourceBulk {
		for _, period := range tokens {
			year, _ := strconv.Atoi(period[:4])
			if year < b.coverage.MinYear || year > b.coverage.MaxYear {
				return nil, invalid("period",
					"year %d is outside the bulk dataset coverage %d-%d; choose a year in range or switch to the remote source",
					year, b.coverage.MinYear, b.coverage.MaxYear)
			}
		}
	}
	return tokens, nil
}

func expandPeriodToken(token string, freq model.Frequency) ([]string, error) {
	if freq == model.FreqMonthly {
		return expandMonthly(token)
	}
	return expandAnnual(token)
}

func expandAnnual(token string) ([]string, error) {
	if start, end, isRange := splitRange(token); isRange {
		startYear, err := parseYearToken(start)
		if err != nil {
			return nil, err
		}
		endYear, err := parseYearToken(end)
		if err != nil {
			return nil, err
		}
		if endYear < startYear {
			return nil, invalid("period", "range %q ends before it starts", token)
		}
		years := make([]string, 0, endYear-startYear+1)
		for year := startYear; year <= endYear; year++ {
			years = append(years, fmt.Sprintf("%04d", year))
		}
		return years, nil
	}
	year, err := parseYearToken(token)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("%04d", year)}, nil
}

func expandMonthly(token string) ([]string, error) {
	if start, end, isRange := splitRange(token); isRange {
		startYear, startMonth, err := parseMonthToken(start)
		if err != nil {
			return nil, err
		}
		endYear, endMonth, err := parseMonthToken(end)
		if err != nil {
			return nil, err
		}
		if endYear < startYear || (endYear == startYear && endMonth < startMonth) {
			return nil, invalid("period", "range %q ends before it starts", token)
		}
		periods := make([]string, 0, (endYear-startYear)*12+endMonth-startMonth+1)
		year, month := startYear, startMonth
		for year < endYear || (year == endYear && month <= endMonth) {
			periods = append(periods, fmt.Sprintf("%04d%02d", year, month))
			month++
			if month > 12 {
				month = 1
				year++
			}
		}
		return periods, nil
	}
	year, month, err := parseMonthToken(token)
	if err != nil {
		return nil, err
	}
	return []string{fmt.Sprintf("%04d%02d", year, month)}, nil
}

func splitRange(token string) (start, end string, isRange bool) {
	idx := strings.Index(token, "-")
	if idx <= 0 || idx == len(token)-1 {
		return "", "", false
	}
	return strings.TrimSpace(token[:idx]), strings.TrimSpace(token[idx+1:]), true
}

func parseYearToken(token string) (int, error) {
	if len(token) != 4 || !isDigits(token) {
		return 0, invalid("period", "%q is not a 4-digit year", token)
	}
	year, err := strconv.Atoi(token)
	if err != nil {
		return 0, invalid("period", "%q is not a valid year", token)
	}
	return year, nil
}

func parseMonthToken(token string) (year, month int, err error) {
	if len(token) != 6 || !isDigits(token) {
		return 0, 0, invalid("period", "%q is not a 6-digit YYYYMM period", token)
	}
	year, _ = strconv.Atoi(token[:4])
	month, _ = strconv.Atoi(token[4:])
	if month < 1 || month > 12 {
		return 0, 0, invalid("period", "%q has month outside 01-12", token)
	}
	return year, month, nil
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
