// Package bulk reads the locally stored harmonized bilateral trade
// dataset: one CSV file per year with columns t (year), i (exporter),
// j (importer), k (product), v (value, thousand USD), q (quantity, metric
// tons).
package bulk

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/providers"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/reference"
)

const (
	defaultFilePattern     = "BACI_HS92_Y{year}_V202601.csv"
	defaultValueMultiplier = 1000 // dataset values are thousand USD
)

type Config struct {
	Dir             string
	FilePattern     string // must contain {year}
	ValueMultiplier int64
}

type Provider struct {
	config  Config
	catalog *reference.Catalog
}

func New(cfg Config, catalog *reference.Catalog) (*Provider, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("bulk: dataset directory is required")
	}
	if strings.TrimSpace(cfg.FilePattern) == "" {
		cfg.FilePattern = defaultFilePattern
	}
	if !strings.Contains(cfg.FilePattern, "{year}") {
		return nil, fmt.Errorf("bulk: file pattern %q has no {year} placeholder", cfg.FilePattern)
	}
	if cfg.ValueMultiplier <= 0 {
		cfg.ValueMultiplier = defaultValueMultiplier
	}
	return &Provider{config: cfg, catalog: catalog}, nil
}

func (p *Provider) Name() string {
	return "bulk"
}

// Fetch reads each requested year's file and filters rows by reporter,
// product-code prefix and flow direction in one streaming pass. A missing
// year file fails with ErrDataUnavailable; a year with no matching rows
// contributes nothing.
func (p *Provider) Fetch(ctx context.Context, query model.Query) ([]model.TradeRecord, error) {
	records := make([]model.TradeRecord, 0)
	for _, year := range query.Periods {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := p.fetchYear(query, year)
		if err != nil {
			return nil, err
		}
		records = append(records, rows...)
	}
	return records, nil
}

func (p *Provider) fetchYear(query model.Query, year string) ([]model.TradeRecord, error) {
	path := filepath.Join(p.config.Dir, strings.ReplaceAll(p.config.FilePattern, "{year}", year))
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no bulk file for year %s (%s)", providers.ErrDataUnavailable, year, path)
		}
		return nil, fmt.Errorf("bulk: open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("bulk: read header of %s: %w", path, err)
	}
	columns := columnIndex(header)
	for _, name := range []string{"t", "i", "j", "k", "v"} {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("bulk: %s is missing column %q", path, name)
		}
	}

	// Imports: the reporter is the importer (j). Exports: the exporter (i).
	reporterCol, partnerCol := "i", "j"
	if query.Flow == model.FlowImport {
		reporterCol, partnerCol = "j", "i"
	}
	reporterKey := stripZeros(query.ReporterCode)
	partnerKey := ""
	if query.PartnerScope == model.PartnerSpecific {
		partnerKey = stripZeros(query.PartnerCode)
	}

	multiplier := decimal.NewFromInt(p.config.ValueMultiplier)
	records := make([]model.TradeRecord, 0)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bulk: read %s: %w", path, err)
		}

		if stripZeros(cell(row, columns, reporterCol)) != reporterKey {
			continue
		}
		partnerCode := cell(row, columns, partnerCol)
		if partnerKey != "" && stripZeros(partnerCode) != partnerKey {
			continue
		}
		productCode := cell(row, columns, "k")
		if !matchesProducts(productCode, query.ProductCodes) {
			continue
		}

		metrics := make(map[string]decimal.Decimal, 2)
		if value, err := decimal.NewFromString(cell(row, columns, "v")); err == nil {
			metrics[model.MetricPrimaryValue] = value.Mul(multiplier)
		}
		if quantity := cell(row, columns, "q"); quantity != "" && !strings.EqualFold(quantity, "na") {
			if parsed, err := decimal.NewFromString(quantity); err == nil {
				metrics[model.MetricQuantity] = parsed
			}
		}
		if len(metrics) == 0 {
			continue
		}

		records = append(records, model.TradeRecord{
			Period:       cell(row, columns, "t"),
			ReporterCode: query.ReporterCode,
			PartnerCode:  partnerCode,
			PartnerName:  p.catalog.CountryName(partnerCode),
			ProductCode:  productCode,
			ProductDesc:  p.catalog.ProductDescription(productCode),
			Flow:         query.Flow,
			Metrics:      metrics,
		})
	}
	return records, nil
}

// matchesProducts reports whether a dataset product code is selected by
// any of the query's product codes. Aggregate tokens select everything;
// numeric codes select by prefix, so "10" covers the whole chapter.
func matchesProducts(code string, selections []string) bool {
	stripped := stripZeros(code)
	for _, selection := range selections {
		if reference.AggregateTokens[selection] {
			return true
		}
		if strings.HasPrefix(stripped, stripZeros(selection)) {
			return true
		}
	}
	return false
}

func columnIndex(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return columns
}

func cell(row []string, columns map[string]int, name string) string {
	index, ok := columns[name]
	if !ok || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

func stripZeros(code string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(code), "0")
	if trimmed == "" && strings.TrimSpace(code) != "" {
		return "0"
	}
	return trimmed
}

var _ providers.RowProvider = (*Provider)(nil)
