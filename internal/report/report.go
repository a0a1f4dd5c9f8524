// Package report writes an aggregated result to disk as a CSV table plus a
// plain-text summary. File names are derived deterministically from the
// query so repeated runs with the same criteria overwrite their own output.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
)

const sharePlaces = 4

type Emitter struct {
	outDir string
}

func NewEmitter(outDir string) (*Emitter, error) {
	if strings.TrimSpace(outDir) == "" {
		return nil, fmt.Errorf("report: output directory is required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create output dir: %w", err)
	}
	return &Emitter{outDir: outDir}, nil
}

// Write emits <base>.csv and <base>_summary.txt and returns both paths.
func (e *Emitter) Write(result *model.RankedResult) (csvPath, summaryPath string, err error) {
	base := BaseName(result.Query)
	csvPath = filepath.Join(e.outDir, base+".csv")
	summaryPath = filepath.Join(e.outDir, base+"_summary.txt")

	if err := e.writeCSV(csvPath, result); err != nil {
		return "", "", err
	}
	if err := e.writeSummary(summaryPath, result); err != nil {
		return "", "", err
	}
	return csvPath, summaryPath, nil
}

// BaseName builds a filesystem-safe, deterministic stem for a query, e.g.
// bulk_A_2021-2022_818_imp_HS_27_all_primaryValue. Every resolved field
// that distinguishes one query from another is encoded, including the full
// period list and the partner, so runs with different parameters never
// share a stem.
func BaseName(query model.Query) string {
	periods := strings.Join(query.Periods, "-")
	if periods == "" {
		periods = "all"
	}
	products := "all"
	if len(query.ProductCodes) > 0 {
		products = strings.Join(query.ProductCodes, "-")
	}
	partner := "all"
	if query.PartnerScope == model.PartnerSpecific {
		partner = query.PartnerCode
	}
	parts := []string{
		string(query.Source),
		string(query.Frequency),
		periods,
		query.ReporterCode,
		query.Flow.Short(),
		query.Classification + "_" + products,
		partner,
		query.RankMetric,
	}
	return sanitize(strings.Join(parts, "_"))
}

func sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	return b.String()
}

func (e *Emitter) writeCSV(path string, result *model.RankedResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create csv: %w", err)
	}
	defer file.Close()

	metrics := presentMetrics(result)
	header := make([]string, 0, len(metrics)+3)
	header = append(header, "Group_Code", "Group_Label")
	header = append(header, metrics...)
	withShare := result.Mode == model.ByPartner
	if withShare {
		header = append(header, "Share_Percent")
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("report: write csv header: %w", err)
	}
	for _, row := range result.Rows {
		record := make([]string, 0, len(header))
		record = append(record, row.GroupKey, row.GroupLabel)
		for _, metric := range metrics {
			if value, ok := row.Metrics[metric]; ok {
				record = append(record, value.String())
			} else {
				record = append(record, "")
			}
		}
		if withShare {
			record = append(record, shareCell(row, result.RankMetric))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("report: write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("report: flush csv: %w", err)
	}
	return nil
}

// shareCell renders a row's share of the rank-metric total. The total row
// carries 100 only when a usable total exists; with an absent or zero
// total no row has a defined share, the total included.
func shareCell(row model.AggregatedRow, rankMetric string) string {
	if row.IsTotal {
		if total, ok := row.Metrics[rankMetric]; ok && !total.IsZero() {
			return "100"
		}
		return ""
	}
	if row.Share == nil {
		return ""
	}
	return row.Share.Mul(decimal.NewFromInt(100)).Round(sharePlaces).String()
}

// presentMetrics returns the metric columns that at least one row carries,
// in canonical column order.
func presentMetrics(result *model.RankedResult) []string {
	seen := make(map[string]bool)
	for _, row := range result.Rows {
		for metric := range row.Metrics {
			seen[metric] = true
		}
	}
	columns := make([]string, 0, len(seen))
	for _, metric := range model.MetricColumns {
		if seen[metric] {
			columns = append(columns, metric)
		}
	}
	return columns
}

func (e *Emitter) writeSummary(path string, result *model.RankedResult) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("report: create summary: %w", err)
	}
	defer file.Close()

	query := result.Query
	groups := result.Groups()

	var b strings.Builder
	b.WriteString("Trade Analysis Summary\n")
	b.WriteString("======================\n\n")
	fmt.Fprintf(&b, "Source:         %s\n", query.Source)
	fmt.Fprintf(&b, "Frequency:      %s\n", query.Frequency)
	fmt.Fprintf(&b, "Periods:        %s\n", strings.Join(query.Periods, ", "))
	fmt.Fprintf(&b, "Classification: %s\n", query.Classification)
	fmt.Fprintf(&b, "Reporter:       %s (%s)\n", query.ReporterName, query.ReporterCode)
	fmt.Fprintf(&b, "Flow:           %s\n", query.Flow.Label())
	fmt.Fprintf(&b, "Products:       %s\n", strings.Join(query.ProductCodes, ", "))
	if query.PartnerScope == model.PartnerSpecific {
		fmt.Fprintf(&b, "Partner:        %s (%s)\n", query.PartnerName, query.PartnerCode)
	} else {
		b.WriteString("Partner:        All partners\n")
	}
	fmt.Fprintf(&b, "Ranked by:      %s\n\n", result.RankMetric)

	fmt.Fprintf(&b, "Groups:         %d\n", len(groups))
	if result.Excluded > 0 {
		fmt.Fprintf(&b, "Excluded rows:  %d (missing group key)\n", result.Excluded)
	}
	if total, ok := result.Total(); ok {
		if value, ok := total.Metrics[result.RankMetric]; ok {
			fmt.Fprintf(&b, "Total %s: %s\n", result.RankMetric, value.String())
		}
	}

	limit := len(groups)
	if limit > 10 {
		limit = 10
	}
	if limit > 0 {
		fmt.Fprintf(&b, "\nTop %d by %s:\n", limit, result.RankMetric)
		for i := 0; i < limit; i++ {
			row := groups[i]
			value := "-"
			if v, ok := row.Metrics[result.RankMetric]; ok {
				value = v.String()
			}
			fmt.Fprintf(&b, "%3d. %-40s %s\n", i+1, labelOrKey(row), value)
		}
	}

	if _, err := file.WriteString(b.String()); err != nil {
		return fmt.Errorf("report: write summary: %w", err)
	}
	return nil
}

func labelOrKey(row model.AggregatedRow) string {
	if row.GroupLabel != "" {
		return fmt.Sprintf("%s (%s)", row.GroupLabel, row.GroupKey)
	}
	return row.GroupKey
}
