package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finqa/internal/domain"
)

const corpusCSV = `question,ticker,context
"What drove growth?",NVDA,"Data center revenue was a record, driven by demand for accelerated computing."
"Gaming?",nvda,"Gaming revenue grew on strong sell-through of new GPUs."
"iPhone?",AAPL,"iPhone net sales decreased slightly year over year."
"Empty",MSFT,
`

// fakeModelServer serves OpenAI-compatible embeddings and streaming chat completions.
func fakeModelServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		data := make([]map[string]any, len(req.Input))
		for i := range req.Input {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": []float32{1, 0.5, 0.25}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, f := range []string{"NVDA revenue ", "grew."} {
			chunk, _ := json.Marshal(map[string]any{
				"object":  "chat.completion.chunk",
				"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": f}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, store string) string {
	t.Helper()
	dir := t.TempDir()
	srv := fakeModelServer(t)
	corpus := filepath.Join(dir, "corpus.csv")
	require.NoError(t, os.WriteFile(corpus, []byte(corpusCSV), 0o600))

	cfg := fmt.Sprintf(`embedder:
  type: openai
  openai:
    base_url: %[1]s/v1
    api_key_env: FINQA_TEST_KEY
    model: test-embedding
generator:
  type: openai
  openai:
    base_url: %[1]s/v1
    api_key_env: FINQA_TEST_KEY
    model: test-chat
vector_store:
  type: %[2]s
  sqlite:
    path: %[3]s
ingest:
  source_path: %[4]s
log:
  file: %[5]s
`, srv.URL, store, filepath.Join(dir, "vectors.db"), corpus, filepath.Join(dir, "finqa.log"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRootCmd_Structure(t *testing.T) {
	cmd := NewRootCmd()
	assert.Equal(t, "finqa", cmd.Use)
	for _, name := range []string{"config", "debug", "log-file"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "--%s", name)
	}
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"ingest", "chat", "ask", "tickers", "version"})
}

func TestVersionCmd_Output(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()
	SetVersion("1.2.3", "abc123", "2026-01-31")

	out, _, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "finqa 1.2.3")
	assert.Contains(t, out, "abc123")
}

func TestTickersCmd(t *testing.T) {
	out, _, err := run(t, "tickers")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 67)
	assert.Equal(t, "AAPL", lines[0])
	assert.Contains(t, lines, "BRK-A")
}

func TestAskCmd_MemoryStore(t *testing.T) {
	t.Setenv("FINQA_TEST_KEY", "k")
	path := writeConfig(t, "memory")

	out, errOut, err := run(t, "--config", path, "ask", "How did NVDA do?")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Analyzing NVDA.")
	assert.Contains(t, out, "NVDA revenue grew.\n")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "[1] NVDA")
	assert.NotContains(t, out, "AAPL")
}

func TestAskCmd_DefaultTickerFlag(t *testing.T) {
	t.Setenv("FINQA_TEST_KEY", "k")
	path := writeConfig(t, "memory")

	_, errOut, err := run(t, "--config", path, "ask", "--ticker", "aapl", "--no-sources", "What about sales?")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Using default ticker AAPL")

	_, _, err = run(t, "--config", path, "ask", "--ticker", "ZZZZ", "q")
	assert.ErrorContains(t, err, "unknown ticker")
}

func TestIngestCmd_SQLiteIsIdempotent(t *testing.T) {
	t.Setenv("FINQA_TEST_KEY", "k")
	path := writeConfig(t, "sqlite")
	total := regexp.MustCompile(`vectors in collection: (\d+)`)

	out, _, err := run(t, "--config", path, "ingest")
	require.NoError(t, err)
	assert.Contains(t, out, "records:  4")
	assert.Contains(t, out, "skipped:  1")
	first := total.FindStringSubmatch(out)
	require.Len(t, first, 2)

	out, _, err = run(t, "--config", path, "ingest", "--batch-size", "1")
	require.NoError(t, err)
	second := total.FindStringSubmatch(out)
	require.Len(t, second, 2)
	assert.Equal(t, first[1], second[1])
	assert.Equal(t, "3", second[1])
}

func TestAskCmd_CollectionMissing(t *testing.T) {
	t.Setenv("FINQA_TEST_KEY", "k")
	path := writeConfig(t, "sqlite")

	_, _, err := run(t, "--config", path, "ask", "How did NVDA do?")
	assert.ErrorIs(t, err, domain.ErrCollectionNotFound)
}

func TestChatCmd_MissingCredential(t *testing.T) {
	t.Setenv("FINQA_TEST_KEY", "")
	path := writeConfig(t, "memory")

	_, _, err := run(t, "--config", path, "chat")
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
}

func TestIngestCmd_InvalidBatchSize(t *testing.T) {
	_, _, err := run(t, "ingest", "--batch-size", "-1")
	assert.ErrorContains(t, err, "batch-size")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
