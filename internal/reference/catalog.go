package reference

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	similarityThreshold = 0.75
	ambiguityMargin     = 0.05
	maxSuggestions      = 3
)

type Kind string

const (
	KindCountry Kind = "country"
	KindProduct Kind = "product"
)

// Entry is one reference row. Codes are unique within a kind.
type Entry struct {
	Code string
	Name string
	Kind Kind
}

type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchFuzzy MatchType = "fuzzy"
)

type CountryMatch struct {
	Code       string
	Name       string
	MatchType  MatchType
	Confidence float64
}

type ProductMatch struct {
	Code        string
	Description string
}

// NotFoundError reports a failed lookup, with up to three nearest names
// by similarity so the user can correct the input.
type NotFoundError struct {
	Input       string
	Kind        Kind
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("reference: no %s found matching %q", e.Kind, e.Input)
	}
	return fmt.Sprintf("reference: no %s found matching %q (did you mean: %s)",
		e.Kind, e.Input, strings.Join(e.Suggestions, ", "))
}

// AmbiguousError reports a fuzzy lookup whose best candidates scored too
// close to pick one. Candidates lists all near-ties.
type AmbiguousError struct {
	Input      string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("reference: %q is ambiguous between: %s", e.Input, strings.Join(e.Candidates, ", "))
}

// AggregateTokens are product selectors that stand for a whole
// classification level rather than a literal code.
var AggregateTokens = map[string]bool{
	"TOTAL": true,
	"AG2":   true,
	"AG4":   true,
	"AG6":   true,
}

// Catalog holds the country and product reference entries, loaded once at
// startup and read-only afterwards. Safe for concurrent readers.
type Catalog struct {
	countries []Entry

	countryByCode map[string]Entry
	countryByName map[string]Entry // normalized name key
	productByCode map[string]Entry // leading-zero-stripped code key
}

// NewCatalog builds a catalog from in-memory entries. Duplicate codes
// within a kind are rejected.
func NewCatalog(countries, products []Entry) (*Catalog, error) {
	c := &Catalog{
		countries:     countries,
		countryByCode: make(map[string]Entry, len(countries)),
		countryByName: make(map[string]Entry, len(countries)),
		productByCode: make(map[string]Entry, len(products)),
	}
	for _, entry := range countries {
		code := strings.TrimSpace(entry.Code)
		if code == "" {
			continue
		}
		if _, dup := c.countryByCode[code]; dup {
			return nil, fmt.Errorf("reference: duplicate country code %s", code)
		}
		entry.Kind = KindCountry
		c.countryByCode[code] = entry
		if key := Normalize(entry.Name); key != "" {
			c.countryByName[key] = entry
		}
	}
	for _, entry := range products {
		code := stripZeros(entry.Code)
		if code == "" {
			continue
		}
		if _, dup := c.productByCode[code]; dup {
			return nil, fmt.Errorf("reference: duplicate product code %s", entry.Code)
		}
		entry.Kind = KindProduct
		c.productByCode[code] = entry
	}
	return c, nil
}

// LoadCSV reads the country and product reference files. Column order is
// not assumed; headers are matched case-insensitively against the known
// aliases used by the bulk dataset and the remote API reference dumps.
func LoadCSV(countryPath, productPath string) (*Catalog, error) {
	countries, err := readEntries(countryPath, KindCountry)
	if err != nil {
		return nil, err
	}
	products, err := readEntries(productPath, KindProduct)
	if err != nil {
		return nil, err
	}
	return NewCatalog(countries, products)
}

func readEntries(path string, kind Kind) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reference: open %s: %w", path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	headerRow, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reference: read header of %s: %w", path, err)
	}
	header := normalizeHeader(headerRow)

	codeKeys := []string{"country_code", "code", "id"}
	nameKeys := []string{"country_name", "description", "name", "text"}
	if kind == KindProduct {
		codeKeys = []string{"code", "product_code", "id"}
	}

	entries := make([]Entry, 0, 256)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reference: read %s: %w", path, err)
		}
		code := getCell(record, header, codeKeys...)
		name := getCell(record, header, nameKeys...)
		if code == "" || name == "" {
			continue
		}
		entries = append(entries, Entry{Code: code, Name: name, Kind: kind})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("reference: no entries parsed from %s", path)
	}
	return entries, nil
}

// ResolveCountry resolves a free-form country input: a numeric code, an
// exact name (case- and diacritic-insensitive), or an approximate name.
// Approximate matches must clear the similarity threshold and be
// unambiguous, otherwise the call fails with suggestions or ties.
func (c *Catalog) ResolveCountry(input string) (CountryMatch, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return CountryMatch{}, &NotFoundError{Input: input, Kind: KindCountry}
	}

	if isDigits(trimmed) {
		if entry, ok := c.countryByCode[stripZeros(trimmed)]; ok {
			return CountryMatch{Code: entry.Code, Name: entry.Name, MatchType: MatchExact, Confidence: 1}, nil
		}
		if entry, ok := c.countryByCode[trimmed]; ok {
			return CountryMatch{Code: entry.Code, Name: entry.Name, MatchType: MatchExact, Confidence: 1}, nil
		}
		return CountryMatch{}, &NotFoundError{Input: trimmed, Kind: KindCountry}
	}

	key := Normalize(trimmed)
	if entry, ok := c.countryByName[key]; ok {
		return CountryMatch{Code: entry.Code, Name: entry.Name, MatchType: MatchExact, Confidence: 1}, nil
	}

	scored := c.scoreCountries(key)
	if len(scored) == 0 {
		return CountryMatch{}, &NotFoundError{Input: trimmed, Kind: KindCountry}
	}

	top := scored[0]
	if top.score < similarityThreshold {
		return CountryMatch{}, &NotFoundError{Input: trimmed, Kind: KindCountry, Suggestions: suggestionNames(scored)}
	}

	ties := []string{top.entry.Name}
	for _, cand := range scored[1:] {
		if top.score-cand.score >= ambiguityMargin {
			break
		}
		ties = append(ties, cand.entry.Name)
	}
	if len(ties) > 1 {
		return CountryMatch{}, &AmbiguousError{Input: trimmed, Candidates: ties}
	}

	return CountryMatch{
		Code:       top.entry.Code,
		Name:       top.entry.Name,
		MatchType:  MatchFuzzy,
		Confidence: top.score,
	}, nil
}

// ResolveProducts resolves a comma-separated product selection. Each
// element is resolved independently; the first failing element fails the
// whole call with that token identified.
func (c *Catalog) ResolveProducts(input, classification string) ([]ProductMatch, error) {
	parts := strings.Split(input, ",")
	matches := make([]ProductMatch, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		match, err := c.ResolveProduct(token, classification)
		if err != nil {
			return nil, err
		}
		if seen[match.Code] {
			continue
		}
		seen[match.Code] = true
		matches = append(matches, match)
	}
	if len(matches) == 0 {
		return nil, &NotFoundError{Input: input, Kind: KindProduct}
	}
	return matches, nil
}

// ResolveProduct resolves one product token: an aggregate token, an exact
// classification code, or a 2/4-digit code covering subcategories by
// prefix.
func (c *Catalog) ResolveProduct(input, classification string) (ProductMatch, error) {
	token := strings.ToUpper(strings.TrimSpace(input))
	if token == "" {
		return ProductMatch{}, &NotFoundError{Input: input, Kind: KindProduct}
	}
	if AggregateTokens[token] {
		return ProductMatch{Code: token, Description: "All products at specified level"}, nil
	}
	if !isDigits(token) {
		return ProductMatch{}, &NotFoundError{Input: token, Kind: KindProduct}
	}

	stripped := stripZeros(token)
	if entry, ok := c.productByCode[stripped]; ok {
		return ProductMatch{Code: token, Description: entry.Name}, nil
	}

	subcategories := 0
	for code := range c.productByCode {
		if strings.HasPrefix(code, stripped) {
			subcategories++
		}
	}
	if subcategories > 0 {
		return ProductMatch{
			Code:        token,
			Description: fmt.Sprintf("All subcategories (%d)", subcategories),
		}, nil
	}
	return ProductMatch{}, &NotFoundError{Input: token, Kind: KindProduct}
}

// CountryName returns the display name for a country code, or the code
// itself when unknown.
func (c *Catalog) CountryName(code string) string {
	if entry, ok := c.countryByCode[stripZeros(code)]; ok {
		return entry.Name
	}
	if entry, ok := c.countryByCode[code]; ok {
		return entry.Name
	}
	return code
}

// ProductDescription returns the description for a product code, or an
// empty string when unknown.
func (c *Catalog) ProductDescription(code string) string {
	if entry, ok := c.productByCode[stripZeros(code)]; ok {
		return entry.Name
	}
	return ""
}

type scoredEntry struct {
	entry Entry
	score float64
}

func (c *Catalog) scoreCountries(normalizedInput string) []scoredEntry {
	scored := make([]scoredEntry, 0, len(c.countries))
	for _, entry := range c.countries {
		name := Normalize(entry.Name)
		if name == "" {
			continue
		}
		scored = append(scored, scoredEntry{entry: entry, score: similarity(normalizedInput, name)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].entry.Code < scored[j].entry.Code
	})
	return scored
}

func suggestionNames(scored []scoredEntry) []string {
	n := maxSuggestions
	if len(scored) < n {
		n = len(scored)
	}
	names := make([]string, 0, n)
	for _, cand := range scored[:n] {
		names = append(names, cand.entry.Name)
	}
	return names
}

// similarity is a Levenshtein ratio: 1 - distance/max(len). Inputs are
// expected to be normalized already.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases, strips diacritics and punctuation, and collapses
// whitespace, so "Côte d'Ivoire" and "cote divoire" compare equal.
func Normalize(s string) string {
	stripped, _, err := transform.String(diacriticStripper, s)
	if err != nil {
		stripped = s
	}
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(stripped) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r) && !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func stripZeros(code string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(code), "0")
	if trimmed == "" && strings.TrimSpace(code) != "" {
		return "0"
	}
	return trimmed
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

func normalizeHeader(header []string) map[string]int {
	result := make(map[string]int, len(header))
	for i, value := range header {
		key := strings.ToLower(strings.TrimSpace(value))
		if key == "" {
			continue
		}
		result[key] = i
	}
	return result
}

func getCell(record []string, header map[string]int, keys ...string) string {
	for _, key := range keys {
		index, ok := header[key]
		if !ok || index >= len(record) {
			continue
		}
		if value := strings.TrimSpace(record[index]); value != "" {
			return value
		}
	}
	return ""
}
