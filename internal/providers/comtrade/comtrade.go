// Package comtrade fetches as-reported trade statistics from the UN
// Comtrade web API, one request per requested period. Requests are
// dispatched sequentially and never retried; failures surface as
// providers.ProviderError.
package comtrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/providers"
)

const (
	defaultBaseURL        = "https://comtradeapi.un.org/"
	defaultDataPath       = "data/v1/get/{type}/{freq}/{cl}"
	defaultAPIKeyParam    = "subscription-key"
	defaultTypeCode       = "C"
	defaultFormat         = "json"
	defaultMaxRecords     = 250000
	defaultTimeoutSeconds = 30
	defaultUserAgent      = "InternationalTradeAnalyzer/0.1"

	worldPartnerCode = "0"
)

type Config struct {
	BaseURL         string
	DataPath        string
	APIKeyParam     string
	APIKeyPrimary   string
	APIKeySecondary string
	TypeCode        string
	Format          string
	MaxRecords      int
	Timeout         time.Duration
	UserAgent       string
}

type Provider struct {
	config Config
	client *http.Client
}

func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.APIKeyPrimary) == "" {
		return nil, errors.New("comtrade: api key is required (PRIMARY_KEY)")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.DataPath) == "" {
		cfg.DataPath = defaultDataPath
	}
	if strings.TrimSpace(cfg.APIKeyParam) == "" {
		cfg.APIKeyParam = defaultAPIKeyParam
	}
	if strings.TrimSpace(cfg.TypeCode) == "" {
		cfg.TypeCode = defaultTypeCode
	}
	if strings.TrimSpace(cfg.Format) == "" {
		cfg.Format = defaultFormat
	}
	if cfg.MaxRecords <= 0 {
		cfg.MaxRecords = defaultMaxRecords
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Provider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (p *Provider) Name() string {
	return "comtrade"
}

// Fetch issues one API call per requested period, strictly in order, and
// translates the tabular responses into trade records. Zero records is a
// valid outcome.
func (p *Provider) Fetch(ctx context.Context, query model.Query) ([]model.TradeRecord, error) {
	records := make([]model.TradeRecord, 0)
	for _, period := range query.Periods {
		rows, err := p.fetchPeriod(ctx, query, period)
		if err != nil {
			return nil, err
		}
		records = append(records, rows...)
	}
	return records, nil
}

func (p *Provider) fetchPeriod(ctx context.Context, query model.Query, period string) ([]model.TradeRecord, error) {
	params := url.Values{}
	params.Set("reporterCode", query.ReporterCode)
	params.Set("flowCode", string(query.Flow))
	params.Set("period", period)
	params.Set("cmdCode", strings.Join(query.ProductCodes, ","))
	params.Set("format", p.config.Format)
	params.Set("includeDesc", "true")
	if query.PartnerScope == model.PartnerSpecific {
		params.Set("partnerCode", query.PartnerCode)
	}
	if p.config.MaxRecords > 0 {
		params.Set("maxRecords", strconv.Itoa(p.config.MaxRecords))
	}

	body, err := p.doRequest(ctx, p.dataURL(query), params)
	if err != nil {
		return nil, err
	}
	return parseRecords(body, query)
}

func (p *Provider) dataURL(query model.Query) string {
	path := strings.TrimLeft(p.config.DataPath, "/")
	path = strings.ReplaceAll(path, "{type}", url.PathEscape(p.config.TypeCode))
	path = strings.ReplaceAll(path, "{freq}", url.PathEscape(string(query.Frequency)))
	path = strings.ReplaceAll(path, "{cl}", url.PathEscape(query.Classification))
	return strings.TrimRight(p.config.BaseURL, "/") + "/" + path
}

// doRequest tries the primary subscription key and falls back to the
// secondary only when the primary is rejected outright. There is no
// retry: any other failure aborts the fetch.
func (p *Provider) doRequest(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	keys := []string{p.config.APIKeyPrimary}
	if s := strings.TrimSpace(p.config.APIKeySecondary); s != "" && s != p.config.APIKeyPrimary {
		keys = append(keys, s)
	}

	var lastErr error
	for _, key := range keys {
		body, status, err := p.doRequestWithKey(ctx, endpoint, params, key)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if status != http.StatusUnauthorized && status != http.StatusForbidden {
			return nil, err
		}
	}
	return nil, lastErr
}

func (p *Provider) doRequestWithKey(ctx context.Context, endpoint string, params url.Values, apiKey string) ([]byte, int, error) {
	query := url.Values{}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	query.Set(p.config.APIKeyParam, apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("comtrade: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Ocp-Apim-Subscription-Key", apiKey)
	req.Header.Set("User-Agent", p.config.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, &providers.ProviderError{Status: 0, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &providers.ProviderError{Status: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, resp.StatusCode, &providers.ProviderError{
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(body)),
		}
	}
	return body, resp.StatusCode, nil
}

// parseRecords translates the API's tabular JSON into trade records. The
// response shape has shifted between API revisions, so extraction is
// tolerant of key casing and placement. Rows reported against the World
// partner are dropped for all-partner queries to avoid double counting.
func parseRecords(body []byte, query model.Query) ([]model.TradeRecord, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &providers.ProviderError{Status: http.StatusOK, Message: "unparseable response body"}
	}
	rows, err := extractRows(payload)
	if err != nil {
		return nil, err
	}

	records := make([]model.TradeRecord, 0, len(rows))
	for _, row := range rows {
		record, ok := rowToRecord(row, query)
		if !ok {
			continue
		}
		if query.PartnerScope == model.PartnerAll && record.PartnerCode == worldPartnerCode {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func rowToRecord(row map[string]any, query model.Query) (model.TradeRecord, bool) {
	period, ok := getString(row, "period", "refPeriodId", "Period")
	if !ok {
		return model.TradeRecord{}, false
	}

	record := model.TradeRecord{
		Period:       period,
		ReporterCode: query.ReporterCode,
		Flow:         query.Flow,
		Metrics:      make(map[string]decimal.Decimal, len(model.MetricColumns)),
	}
	if reporter, ok := getString(row, "reporterCode", "ReporterCode"); ok {
		record.ReporterCode = reporter
	}
	record.PartnerCode, _ = getString(row, "partnerCode", "PartnerCode")
	record.PartnerName, _ = getString(row, "partnerDesc", "PartnerDesc", "partner")
	record.ProductCode, _ = getString(row, "cmdCode", "CmdCode", "commodityCode")
	record.ProductDesc, _ = getString(row, "cmdDesc", "CmdDesc", "commodity")

	for _, metric := range model.MetricColumns {
		if value, ok := getDecimal(row, metric); ok {
			record.Metrics[metric] = value
		}
	}
	return record, true
}

func extractRows(payload any) ([]map[string]any, error) {
	switch typed := payload.(type) {
	case []any:
		return toRowList(typed), nil
	case map[string]any:
		for _, key := range []string{"data", "Data", "dataset", "Dataset", "results", "Results"} {
			if raw, ok := typed[key]; ok {
				return extractRows(raw)
			}
		}
		return nil, &providers.ProviderError{Status: http.StatusOK, Message: "unexpected response shape"}
	case nil:
		return nil, nil
	default:
		return nil, &providers.ProviderError{Status: http.StatusOK, Message: "unexpected response type"}
	}
}

func toRowList(items []any) []map[string]any {
	rows := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if row, ok := item.(map[string]any); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

func getString(row map[string]any, keys ...string) (string, bool) {
	value, ok := getValue(row, keys...)
	if !ok {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		trimmed := strings.TrimSpace(typed)
		return trimmed, trimmed != ""
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	default:
		return "", false
	}
}

func getDecimal(row map[string]any, keys ...string) (decimal.Decimal, bool) {
	value, ok := getValue(row, keys...)
	if !ok {
		return decimal.Decimal{}, false
	}
	switch typed := value.(type) {
	case float64:
		return decimal.NewFromFloat(typed), true
	case int:
		return decimal.NewFromInt(int64(typed)), true
	case int64:
		return decimal.NewFromInt(typed), true
	case json.Number:
		parsed, err := decimal.NewFromString(typed.String())
		if err != nil {
			return decimal.Decimal{}, false
		}
		return parsed, true
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(typed))
		if err != nil {
			return decimal.Decimal{}, false
		}
		return parsed, true
	default:
		return decimal.Decimal{}, false
	}
}

func getValue(row map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := row[key]; ok && value != nil {
			return value, true
		}
	}
	for rowKey, value := range row {
		if value == nil {
			continue
		}
		for _, key := range keys {
			if strings.EqualFold(rowKey, key) {
				return value, true
			}
		}
	}
	return nil, false
}

var _ providers.RowProvider = (*Provider)(nil)
