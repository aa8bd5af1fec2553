package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/recipe-harvester/internal/recipe"
)

const steakPage = `<html><head><script type="application/ld+json">
{"@type":"Recipe","name":"Pan Steak","recipeIngredient":["1 steak","salt"],
 "recipeInstructions":["Season.","Sear."]}
</script></head></html>`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func dryRunConfig(t *testing.T) string {
	t.Helper()
	return writeFile(t, "config.yaml", `
logging:
  development: false
sources:
  steakhouse:
    extractor: jsonld
`)
}

func TestHarvestRegistersFileAndPrintsJSONReport(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/steak" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(steakPage))
	}))
	t.Cleanup(srv.Close)

	addresses := writeFile(t, "addresses.txt", fmt.Sprintf("# steakhouse\n%s/steak\n\n%s/gone\n", srv.URL, srv.URL))
	out, err := execute(t, "--config", dryRunConfig(t), "--dry-run",
		"harvest", "steakhouse", "--file", addresses, "--json", "--serve-ops=false")
	require.NoError(t, err)

	summary, rest, ok := strings.Cut(out, "\n")
	require.True(t, ok)
	require.Equal(t, "steakhouse: 2 addresses, 2 new", summary)

	var report recipe.RunReport
	require.NoError(t, json.Unmarshal([]byte(rest), &report))
	require.Equal(t, "steakhouse", report.Source)
	require.Equal(t, 2, report.Addresses)
	require.Equal(t, 1, report.Persisted)
	require.Len(t, report.Skipped, 1)
	require.Equal(t, recipe.StageFetch, report.Skipped[0].Stage)
}

func TestHarvestRequiresSource(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "--config", dryRunConfig(t), "--dry-run", "harvest")
	require.ErrorContains(t, err, "--all")
}

func TestHarvestUnknownSourceFails(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "--config", dryRunConfig(t), "--dry-run", "harvest", "nowhere", "--serve-ops=false")
	require.ErrorContains(t, err, "nowhere")
}

func TestRegisterArguments(t *testing.T) {
	t.Parallel()

	out, err := execute(t, "--config", dryRunConfig(t), "--dry-run",
		"register", "steakhouse", "https://a.test/1", "https://a.test/2")
	require.NoError(t, err)
	require.Equal(t, "steakhouse: 2 addresses, 2 new\n", out)
}

func TestRegisterFromFeed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(`<?xml version="1.0"?><rss version="2.0"><channel><title>t</title>
<item><link>/one</link></item><item><link>/two</link></item></channel></rss>`))
	}))
	t.Cleanup(srv.Close)

	out, err := execute(t, "--config", dryRunConfig(t), "--dry-run",
		"register", "steakhouse", "--feed", srv.URL+"/feed.xml")
	require.NoError(t, err)
	require.Equal(t, "steakhouse: 2 addresses, 2 new\n", out)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	t.Parallel()

	cfg := dryRunConfig(t)
	_, err := execute(t, "--config", cfg, "--dry-run", "register", "nowhere", "x")
	require.ErrorContains(t, err, `unknown source "nowhere"`)

	_, err = execute(t, "--config", cfg, "--dry-run", "register", "steakhouse", "--kind", "isbn", "x")
	require.ErrorContains(t, err, "unsupported address kind")

	_, err = execute(t, "--config", cfg, "--dry-run", "register", "steakhouse")
	require.ErrorContains(t, err, "--file")
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "--config", dryRunConfig(t), "migrate")
	require.ErrorContains(t, err, "db.dsn")
}

func TestReadAddressesSkipsCommentsAndBlanks(t *testing.T) {
	t.Parallel()

	got, err := readAddresses(strings.NewReader("  a \n# note\n\n b\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)
}

func TestReferenceLoadsEveryPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("nowPage") {
		case "1":
			_, _ = w.Write([]byte(`{"service":{"list":[
{"fdNm":"쌀","fdEngNm":"Rice","irdnt":[{"irdntSeNm":"일반성분","irdnttcket":[{"irdntEngNm":"Energy","contInfo":"363"}]}]},
{"fdNm":"보리","fdEngNm":"Barley","irdnt":[]}]}}`))
		case "2":
			_, _ = w.Write([]byte(`{"service":{"list":[{"fdNm":"콩","fdEngNm":"Soybean","irdnt":[]}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := writeFile(t, "config.yaml", fmt.Sprintf(`
logging:
  development: false
reference:
  url_template: %s/service?pageSize={page_size}&nowPage={page}
  page_size: 2
  total_count: 3
`, srv.URL))
	out, err := execute(t, "--config", cfg, "--dry-run", "reference")
	require.NoError(t, err)
	require.Equal(t, "ingredient_reference: 2 pages, 2 fetched, 3 entries, 3 new, 0 failed\n", out)
}

func TestReferenceRequiresConfiguration(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "--config", dryRunConfig(t), "--dry-run", "reference")
	require.ErrorContains(t, err, "reference.url_template")
}
