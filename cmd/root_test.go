package cmd

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, boardURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "boardwatch.yaml")
	body := fmt.Sprintf(`harvest:
  per_item_delay_seconds: 0
upstream:
  board_url: %q
db:
  driver: sqlite
  dsn: %q
logging:
  development: false
  level: error
`, boardURL, filepath.Join(dir, "ledger.db"))
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
	err := root.Execute()
	return out.String(), err
}

func TestSchemaAndCrawlsCommands(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, "http://127.0.0.1:1/hot-list")

	out, err := execute(t, "schema", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "schema ready (sqlite)")

	out, err = execute(t, "crawls", "--config", cfg, "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.NotContains(t, out, "open")
}

func TestLoggerStaysScopedToCommand(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logFile := filepath.Join(dir, "boardwatch.log")
	cfg := filepath.Join(dir, "boardwatch.yaml")
	body := fmt.Sprintf(`db:
  driver: sqlite
  dsn: %q
logging:
  development: false
  level: debug
  file: %q
`, filepath.Join(dir, "ledger.db"), logFile)
	require.NoError(t, os.WriteFile(cfg, []byte(body), 0o600))

	_, err := execute(t, "schema", "--config", cfg)
	require.NoError(t, err)

	assert.False(t, zap.L().Core().Enabled(zapcore.FatalLevel), "global logger must stay the no-op default")
	_, err = os.Stat(logFile)
	require.NoError(t, err)
}

func TestWatchOnce(t *testing.T) {
	t.Parallel()

	var base string
	mux := http.NewServeMux()
	mux.HandleFunc("/hot-list", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"data":[
			{"question":{"id":"1","title":"one","url":"%[1]s/question/1"},"reaction":{"new_pv_yesterday":3}},
			{"question":{"id":"2","title":"two","url":"%[1]s/question/2"},"reaction":{"new_pv_yesterday":2}},
			{"question":{"id":"3","title":"three","url":"%[1]s/question/3"},"reaction":{"new_pv_yesterday":1}}
		]}`, base)
	})
	mux.HandleFunc("/question/", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><meta itemprop="answerCount" content="4"></head></html>`)
	})
	upstream := httptest.NewServer(mux)
	t.Cleanup(upstream.Close)
	base = upstream.URL

	cfg := writeConfig(t, upstream.URL+"/hot-list")
	out, err := execute(t, "watch", "--config", cfg, "--once", "--top", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "crawl 1: ok, 2 entries, 2 persisted, 0 failed")

	out, err = execute(t, "crawls", "--config", cfg)
	require.NoError(t, err)
	assert.Regexp(t, `1\s+\S+\s+\S+\s+2\n`, out)
}

func TestWatchRejectsNegativeTop(t *testing.T) {
	t.Parallel()

	cfg := writeConfig(t, "http://127.0.0.1:1/hot-list")
	_, err := execute(t, "watch", "--config", cfg, "--once", "--top", "-1")
	require.ErrorContains(t, err, "--top must be >= 0")
}

func TestWatchOnceReportsBoardFailure(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	t.Cleanup(upstream.Close)

	cfg := writeConfig(t, upstream.URL)
	out, err := execute(t, "watch", "--config", cfg, "--once")
	require.Error(t, err)
	assert.Contains(t, out, "board_unavailable")
}
