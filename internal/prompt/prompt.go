// Package prompt drives the interactive analysis loop. Each criterion is
// asked for in a fixed order; invalid input re-asks the same question with
// the validation message, and EOF ends the session cleanly. Input and
// output streams are injected so sessions can be scripted in tests.
package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/aggregate"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/criteria"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/logger"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/providers"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/reference"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/report"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/store"
)

var errSessionClosed = errors.New("prompt: input closed")

type Session struct {
	scanner   *bufio.Scanner
	out       io.Writer
	builder   *criteria.Builder
	catalog   *reference.Catalog
	providers map[model.Source]providers.RowProvider
	emitter   *report.Emitter
	store     store.Store
}

func NewSession(
	in io.Reader,
	out io.Writer,
	builder *criteria.Builder,
	catalog *reference.Catalog,
	rowProviders map[model.Source]providers.RowProvider,
	emitter *report.Emitter,
	archive store.Store,
) *Session {
	return &Session{
		scanner:   bufio.NewScanner(in),
		out:       out,
		builder:   builder,
		catalog:   catalog,
		providers: rowProviders,
		emitter:   emitter,
		store:     archive,
	}
}

// Run loops entire analyses until the user declines another or input ends.
func (s *Session) Run(ctx context.Context) error {
	fmt.Fprintln(s.out, "International Trade Analyzer")
	fmt.Fprintln(s.out, "----------------------------")

	for {
		if err := s.runOnce(ctx); err != nil {
			if errors.Is(err, errSessionClosed) {
				return nil
			}
			return err
		}

		again, err := s.ask("\nRun another analysis? [y/N]: ")
		if err != nil {
			return nil
		}
		switch strings.ToUpper(strings.TrimSpace(again)) {
		case "Y", "YES":
			fmt.Fprintln(s.out)
		default:
			fmt.Fprintln(s.out, "Goodbye.")
			return nil
		}
	}
}

func (s *Session) runOnce(ctx context.Context) error {
	query, err := s.collectQuery()
	if err != nil {
		return err
	}
	return s.execute(ctx, query)
}

// collectQuery walks the criteria one at a time. Validation failures print
// the reason and repeat the same question; they never abandon earlier
// answers.
func (s *Session) collectQuery() (model.Query, error) {
	var raw criteria.Raw

	freq, err := askField(s, "Frequency [A]nnual or [M]onthly: ", &raw.Frequency, func(input string) (model.Frequency, error) {
		return criteria.ParseFrequency(input)
	})
	if err != nil {
		return model.Query{}, err
	}

	source, err := askField(s, "Source [B]ulk dataset or [C]omtrade API: ", &raw.Source, func(input string) (model.Source, error) {
		parsed, err := criteria.ParseSource(input)
		if err != nil {
			return "", err
		}
		if parsed == model.SourceBulk && freq == model.FreqMonthly {
			return "", fmt.Errorf("the bulk dataset is annual only; choose the remote source for monthly data")
		}
		return parsed, nil
	})
	if err != nil {
		return model.Query{}, err
	}

	if _, err := askField(s, periodPrompt(freq), &raw.Periods, func(input string) ([]string, error) {
		return s.builder.ParsePeriods(input, freq, source)
	}); err != nil {
		return model.Query{}, err
	}

	if _, err := askField(s, "Classification [HS]: ", &raw.Classification, func(input string) (string, error) {
		return criteria.ParseClassification(input)
	}); err != nil {
		return model.Query{}, err
	}

	reporter, err := askField(s, "Reporter country (name or numeric code): ", &raw.Reporter, func(input string) (reference.CountryMatch, error) {
		return s.catalog.ResolveCountry(input)
	})
	if err != nil {
		return model.Query{}, err
	}
	if reporter.MatchType == reference.MatchFuzzy {
		fmt.Fprintf(s.out, "Interpreted %q as %s (code %s, confidence %.2f)\n",
			strings.TrimSpace(raw.Reporter), reporter.Name, reporter.Code, reporter.Confidence)
	}

	classification, _ := criteria.ParseClassification(raw.Classification)
	products, err := askField(s, "Product codes (comma-separated, or TOTAL/AG2/AG4/AG6): ", &raw.Products, func(input string) ([]reference.ProductMatch, error) {
		return s.catalog.ResolveProducts(input, classification)
	})
	if err != nil {
		return model.Query{}, err
	}
	for _, product := range products {
		fmt.Fprintf(s.out, "  %s: %s\n", product.Code, product.Description)
	}

	if _, err := askField(s, "Direction [M] imports or [X] exports: ", &raw.Direction, func(input string) (model.Flow, error) {
		return criteria.ParseDirection(input)
	}); err != nil {
		return model.Query{}, err
	}

	scopeAndPartner, err := askField(s, "Partner country (name, code, or [A]ll): ", &raw.Partner, func(input string) (partnerChoice, error) {
		scope, match, err := s.builder.ParsePartner(input)
		if err != nil {
			return partnerChoice{}, err
		}
		return partnerChoice{scope: scope, match: match}, nil
	})
	if err != nil {
		return model.Query{}, err
	}
	if scopeAndPartner.scope == model.PartnerSpecific && scopeAndPartner.match.MatchType == reference.MatchFuzzy {
		fmt.Fprintf(s.out, "Interpreted %q as %s (code %s, confidence %.2f)\n",
			strings.TrimSpace(raw.Partner), scopeAndPartner.match.Name, scopeAndPartner.match.Code, scopeAndPartner.match.Confidence)
	}

	if _, err := askField(s, "Rank by metric [value]: ", &raw.RankMetric, func(input string) (string, error) {
		return criteria.ParseRankMetric(input, source)
	}); err != nil {
		return model.Query{}, err
	}

	query, err := s.builder.Build(raw)
	if err != nil {
		// Should not happen after per-field validation; surface it anyway.
		fmt.Fprintf(s.out, "Invalid criteria: %v\n", err)
		return s.collectQuery()
	}
	return query, nil
}

type partnerChoice struct {
	scope model.PartnerScope
	match reference.CountryMatch
}

// askField repeats one question until validate accepts the answer. The raw
// answer is stored in *target for the final Build pass.
func askField[T any](s *Session, question string, target *string, validate func(string) (T, error)) (T, error) {
	var zero T
	for {
		answer, err := s.ask(question)
		if err != nil {
			return zero, err
		}
		value, err := validate(answer)
		if err != nil {
			s.explain(err)
			continue
		}
		*target = answer
		return value, nil
	}
}

func (s *Session) ask(question string) (string, error) {
	fmt.Fprint(s.out, question)
	if !s.scanner.Scan() {
		fmt.Fprintln(s.out)
		return "", errSessionClosed
	}
	return s.scanner.Text(), nil
}

// explain prints a validation failure, expanding suggestion and candidate
// lists for the lookup error types.
func (s *Session) explain(err error) {
	var notFound *reference.NotFoundError
	var ambiguous *reference.AmbiguousError
	switch {
	case errors.As(err, &notFound):
		fmt.Fprintf(s.out, "Not found: %q\n", notFound.Input)
		if len(notFound.Suggestions) > 0 {
			fmt.Fprintf(s.out, "Did you mean: %s\n", strings.Join(notFound.Suggestions, ", "))
		}
	case errors.As(err, &ambiguous):
		fmt.Fprintf(s.out, "Ambiguous: %q matches %s equally well; be more specific\n",
			ambiguous.Input, strings.Join(ambiguous.Candidates, ", "))
	default:
		fmt.Fprintf(s.out, "Invalid input: %v\n", err)
	}
}

func periodPrompt(freq model.Frequency) string {
	if freq == model.FreqMonthly {
		return "Periods (YYYYMM, ranges like 202201-202306, comma-separated): "
	}
	return "Periods (YYYY, ranges like 2018-2022, comma-separated): "
}

// execute fetches, aggregates and emits one validated query. Provider
// failures are reported to the user and do not end the session.
func (s *Session) execute(ctx context.Context, query model.Query) error {
	provider, ok := s.providers[query.Source]
	if !ok {
		fmt.Fprintf(s.out, "No provider configured for source %q\n", query.Source)
		return nil
	}

	fmt.Fprintf(s.out, "\nFetching %s data from %s...\n", query.Flow.Label(), provider.Name())
	records, err := provider.Fetch(ctx, query)
	if err != nil {
		var providerErr *providers.ProviderError
		switch {
		case errors.As(err, &providerErr):
			fmt.Fprintf(s.out, "Request failed (HTTP %d): %s\n", providerErr.Status, providerErr.Message)
		case errors.Is(err, providers.ErrDataUnavailable):
			fmt.Fprintf(s.out, "%v\n", err)
		default:
			fmt.Fprintf(s.out, "Fetch failed: %v\n", err)
		}
		return nil
	}

	mode := model.ByPartner
	if query.PartnerScope == model.PartnerSpecific {
		mode = model.ByYear
	}
	result := aggregate.Aggregate(records, mode, query)

	groups := result.Groups()
	fmt.Fprintf(s.out, "Fetched %d records across %d groups.\n", len(records), len(groups))
	if result.Excluded > 0 {
		fmt.Fprintf(s.out, "Excluded %d records with no group key.\n", result.Excluded)
	}
	if flagged := aggregate.ZeroValueGroups(result); len(flagged) > 0 {
		fmt.Fprintf(s.out, "Warning: %d group(s) report a zero %s, which may indicate suppressed data:\n",
			len(flagged), result.RankMetric)
		for _, row := range flagged {
			fmt.Fprintf(s.out, "  - %s (%s)\n", row.GroupLabel, row.GroupKey)
		}
	}

	csvPath, summaryPath, err := s.emitter.Write(result)
	if err != nil {
		fmt.Fprintf(s.out, "Failed to write output: %v\n", err)
		return nil
	}
	fmt.Fprintf(s.out, "Wrote %s\n", csvPath)
	fmt.Fprintf(s.out, "Wrote %s\n", summaryPath)

	if err := s.store.SaveResult(ctx, result); err != nil {
		logger.L.Warn("archive save failed", "error", err)
	}
	return nil
}
