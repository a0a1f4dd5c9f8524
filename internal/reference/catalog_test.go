package reference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(
		[]Entry{
			{Code: "818", Name: "Egypt"},
			{Code: "170", Name: "Colombia"},
			{Code: "384", Name: "Côte d'Ivoire"},
			{Code: "36", Name: "Australia"},
			{Code: "40", Name: "Austria"},
			{Code: "76", Name: "Brazil"},
		},
		[]Entry{
			{Code: "27", Name: "Mineral fuels, mineral oils and products of their distillation"},
			{Code: "2701", Name: "Coal; briquettes, ovoids and similar solid fuels"},
			{Code: "270900", Name: "Petroleum oils, crude"},
			{Code: "271000", Name: "Petroleum oils, other than crude"},
			{Code: "080300", Name: "Bananas, including plantains"},
		},
	)
	require.NoError(t, err)
	return catalog
}

func TestResolveCountry_Code(t *testing.T) {
	catalog := testCatalog(t)

	match, err := catalog.ResolveCountry("818")
	require.NoError(t, err)
	require.Equal(t, "Egypt", match.Name)
	require.Equal(t, MatchExact, match.MatchType)
	require.Equal(t, float64(1), match.Confidence)

	match, err = catalog.ResolveCountry("036")
	require.NoError(t, err)
	require.Equal(t, "Australia", match.Name)

	_, err = catalog.ResolveCountry("999")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestResolveCountry_ExactNameIgnoresCaseAndDiacritics(t *testing.T) {
	catalog := testCatalog(t)

	match, err := catalog.ResolveCountry("  colombia ")
	require.NoError(t, err)
	require.Equal(t, "170", match.Code)
	require.Equal(t, MatchExact, match.MatchType)

	match, err = catalog.ResolveCountry("cote d'ivoire")
	require.NoError(t, err)
	require.Equal(t, "384", match.Code)
	require.Equal(t, MatchExact, match.MatchType)
}

func TestResolveCountry_Fuzzy(t *testing.T) {
	catalog := testCatalog(t)

	match, err := catalog.ResolveCountry("Columbia")
	require.NoError(t, err)
	require.Equal(t, "170", match.Code)
	require.Equal(t, "Colombia", match.Name)
	require.Equal(t, MatchFuzzy, match.MatchType)
	require.Greater(t, match.Confidence, 0.75)
	require.Less(t, match.Confidence, 1.0)
}

func TestResolveCountry_NotFoundCarriesSuggestions(t *testing.T) {
	catalog := testCatalog(t)

	_, err := catalog.ResolveCountry("Xyzzyplanet")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Len(t, notFound.Suggestions, 3)
}

func TestResolveCountry_Ambiguous(t *testing.T) {
	catalog := testCatalog(t)

	// Within one edit of both Australia and Austria.
	_, err := catalog.ResolveCountry("Austrlia")
	var ambiguous *AmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	require.Len(t, ambiguous.Candidates, 2)
	require.Contains(t, ambiguous.Candidates, "Australia")
	require.Contains(t, ambiguous.Candidates, "Austria")
}

func TestResolveProduct(t *testing.T) {
	catalog := testCatalog(t)

	match, err := catalog.ResolveProduct("27", "HS")
	require.NoError(t, err)
	require.Equal(t, "27", match.Code)
	require.Contains(t, match.Description, "Mineral fuels")

	// Leading zeros are insignificant.
	match, err = catalog.ResolveProduct("080300", "HS")
	require.NoError(t, err)
	require.Contains(t, match.Description, "Bananas")

	// 4-digit code absent from the catalog but covering 6-digit children.
	match, err = catalog.ResolveProduct("2709", "HS")
	require.NoError(t, err)
	require.Equal(t, "All subcategories (1)", match.Description)

	match, err = catalog.ResolveProduct("total", "HS")
	require.NoError(t, err)
	require.Equal(t, "TOTAL", match.Code)

	_, err = catalog.ResolveProduct("9999", "HS")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestResolveProducts_ListDedupesAndFailsOnFirstBadToken(t *testing.T) {
	catalog := testCatalog(t)

	matches, err := catalog.ResolveProducts("27, 2701, 27", "HS")
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "27", matches[0].Code)
	require.Equal(t, "2701", matches[1].Code)

	_, err = catalog.ResolveProducts("27, nope", "HS")
	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "NOPE", notFound.Input)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "cote divoire", Normalize("  Côte   d'Ivoire "))
	require.Equal(t, "bolivia plurinational state of", Normalize("Bolivia (Plurinational State of)"))
	require.Equal(t, "", Normalize("  ...  "))
}

func TestLoadCSV(t *testing.T) {
	dir := t.TempDir()
	countryPath := filepath.Join(dir, "countries.csv")
	productPath := filepath.Join(dir, "products.csv")

	require.NoError(t, os.WriteFile(countryPath, []byte(
		"country_code,country_name\n818,Egypt\n170,Colombia\n,blank row skipped\n"), 0o644))
	require.NoError(t, os.WriteFile(productPath, []byte(
		"description,code\nCoal,2701\nBananas,080300\n"), 0o644))

	catalog, err := LoadCSV(countryPath, productPath)
	require.NoError(t, err)

	match, err := catalog.ResolveCountry("Egypt")
	require.NoError(t, err)
	require.Equal(t, "818", match.Code)

	product, err := catalog.ResolveProduct("2701", "HS")
	require.NoError(t, err)
	require.Equal(t, "Coal", product.Description)
}

func TestLoadCSV_MissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "absent.csv"), "also-absent.csv")
	require.Error(t, err)
}
