package commands

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/slp/internal/testkit"
	"github.com/agenthands/slp/pkg/batch"
	"github.com/agenthands/slp/pkg/core"
	"github.com/agenthands/slp/pkg/digest"
	"github.com/agenthands/slp/pkg/transform"
)

var keyPattern = regexp.MustCompile(`sha256=([0-9a-f]{64})`)

type fixture struct {
	srv        *testkit.BlobServer
	dir        string
	configPath string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	srv := testkit.NewBlobServer()
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfg := filepath.Join(dir, "slp.yml")
	require.NoError(t, os.WriteFile(cfg, []byte("transport:\n  get_timeout: 5s\n  put_timeout: 5s\n"), 0o644))
	return &fixture{srv: srv, dir: dir, configPath: cfg}
}

// execute runs the root command with fresh flag values.
func (f *fixture) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	*Global = GlobalConfig{}
	getModelCmdConfig.name = ""
	archiveCmdConfig.ext = ""
	benchCmdConfig.metricsAddr = ""
	llamaBatchCmdConfig.upload = false
	llamaBatchCmdConfig.compress = false
	llamaBatchCmdConfig.concurrency = 0
	llamaBatchCmdConfig.rate = 0

	var out bytes.Buffer
	RootCmd.SetOut(&out)
	RootCmd.SetErr(&out)
	RootCmd.SetArgs(append([]string{
		"--config", f.configPath,
		"--filer", f.srv.URL,
		"--catalog", filepath.Join(f.dir, "catalog"),
	}, args...))
	err := RootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (f *fixture) file(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func firstKey(t *testing.T, out string) core.ObjectKey {
	t.Helper()
	m := keyPattern.FindStringSubmatch(out)
	require.NotNil(t, m, "no key in output: %s", out)
	return core.ObjectKey(m[1])
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "slp.yml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(strings.Join([]string{
		"store:",
		"  base_url: http://filer.local:8888",
		"transport:",
		"  get_timeout: 7s",
		"batch:",
		"  concurrency: 3",
	}, "\n")), 0o644))
	t.Setenv("SLP_INFERENCE_RETRY_MAX", "2")

	*Global = GlobalConfig{ConfigFilePath: cfgPath, Llama: "http://gpu:8081"}
	t.Cleanup(func() { *Global = GlobalConfig{} })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://filer.local:8888", cfg.Store.BaseURL)
	assert.Equal(t, 7*time.Second, cfg.Transport.GetTimeout)
	assert.Equal(t, core.DefaultPutTimeout, cfg.Transport.PutTimeout)
	assert.Equal(t, 3, cfg.Batch.Concurrency)
	assert.Equal(t, core.DefaultMaxTokens, cfg.Batch.MaxTokens)
	assert.Equal(t, 2, cfg.Inference.RetryMax)
	assert.Equal(t, "http://gpu:8081", cfg.Inference.URL)

	Global.Filer = "http://override:1"
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "http://override:1", cfg.Store.BaseURL)
}

func TestLoadConfigMissingFile(t *testing.T) {
	*Global = GlobalConfig{ConfigFilePath: filepath.Join(t.TempDir(), "nope.yml")}
	t.Cleanup(func() { *Global = GlobalConfig{} })

	_, err := loadConfig()
	require.Error(t, err)
}

func TestPutAndGetModel(t *testing.T) {
	f := newFixture(t)
	model := bytes.Repeat([]byte("GGUF weights "), 1000)
	path := f.file(t, "tiny.gguf", model)

	out, err := f.execute(t, "put-model", path, "tiny-llama")
	require.NoError(t, err)
	key := firstKey(t, out)
	assert.Equal(t, digest.Hex(model), key)

	stored, ok := f.srv.Object("/models/" + key.String() + ".gguf")
	require.True(t, ok)
	assert.Equal(t, model, stored)
	mf, ok := f.srv.Object("/models/" + key.String() + ".manifest.json")
	require.True(t, ok)
	assert.Contains(t, string(mf), `"original_name": "tiny-llama"`)

	byHash := filepath.Join(f.dir, "by-hash.gguf")
	out, err = f.execute(t, "get-model", key.String(), byHash)
	require.NoError(t, err)
	assert.Contains(t, out, "hash verified: OK")
	got, err := os.ReadFile(byHash)
	require.NoError(t, err)
	assert.Equal(t, model, got)

	byName := filepath.Join(f.dir, "by-name.gguf")
	_, err = f.execute(t, "get-model", "--name", "tiny-llama", byName)
	require.NoError(t, err)
	got, err = os.ReadFile(byName)
	require.NoError(t, err)
	assert.Equal(t, model, got)

	out, err = f.execute(t, "ls", "models")
	require.NoError(t, err)
	assert.Contains(t, out, key.String())
	assert.Contains(t, out, "tiny-llama")
}

func TestGetModelRejectsCorruption(t *testing.T) {
	f := newFixture(t)
	path := f.file(t, "m.gguf", []byte("some model bytes"))
	out, err := f.execute(t, "put-model", path, "m")
	require.NoError(t, err)
	key := firstKey(t, out)

	f.srv.CorruptReads(true)
	dst := filepath.Join(f.dir, "out.gguf")
	_, err = f.execute(t, "get-model", key.String(), dst)
	require.ErrorIs(t, err, core.ErrIntegrityMismatch)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr), "corrupt download must not be written")
}

func TestGetModelArgs(t *testing.T) {
	f := newFixture(t)
	_, err := f.execute(t, "get-model", "not-a-hash", filepath.Join(f.dir, "x"))
	require.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.execute(t, "get-model", filepath.Join(f.dir, "x"))
	require.ErrorIs(t, err, core.ErrInvalidInput)

	_, err = f.execute(t, "get-model", "--name", "missing", filepath.Join(f.dir, "x"))
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestPutPrompts(t *testing.T) {
	f := newFixture(t)
	prompts := []byte(`{"prompt":"What is AI?","max_tokens":20}` + "\n")
	path := f.file(t, "prompts.jsonl", prompts)

	out, err := f.execute(t, "put-prompts", path)
	require.NoError(t, err)
	key := firstKey(t, strings.Replace(out, "hash=", "sha256=", 1))
	_, ok := f.srv.Object("/prompts/" + key.String() + ".jsonl")
	assert.True(t, ok)
}

func TestPutDetectsType(t *testing.T) {
	f := newFixture(t)
	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 64)...)
	path := f.file(t, "chart", png)

	out, err := f.execute(t, "put", path)
	require.NoError(t, err)
	assert.Contains(t, out, "image/png")
	key := firstKey(t, out)
	_, ok := f.srv.Object("/blobs/" + key.String() + ".png")
	assert.True(t, ok)
}

func TestUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.srv.FailPuts(http.StatusInsufficientStorage)
	path := f.file(t, "m.gguf", []byte("x"))

	_, err := f.execute(t, "put-model", path, "m")
	require.ErrorIs(t, err, core.ErrUploadFailed)
}

func TestExportImport(t *testing.T) {
	f := newFixture(t)
	var keys []string
	for i, body := range []string{"alpha", "beta", "gamma"} {
		path := f.file(t, "b"+string(rune('0'+i)), []byte(body))
		out, err := f.execute(t, "put-model", path, body)
		require.NoError(t, err)
		keys = append(keys, firstKey(t, out).String())
	}

	car := filepath.Join(f.dir, "models.car")
	out, err := f.execute(t, append([]string{"export", car, "models"}, keys...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 3 object(s)")

	out, err = f.execute(t, "import", "--ext", ".bin", car, "blobs")
	require.NoError(t, err)
	assert.Contains(t, out, "imported 3 object(s)")
	for _, k := range keys {
		_, ok := f.srv.Object("/blobs/" + k + ".bin")
		assert.True(t, ok, k)
	}

	_, err = f.execute(t, "export", car, "nowhere", keys[0])
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

func TestBenchStorage(t *testing.T) {
	f := newFixture(t)
	out, err := f.execute(t, "bench-storage", "0.01", "3", "roundtrip")
	require.NoError(t, err)
	assert.Contains(t, out, "completed 3/3 iterations")
	assert.Contains(t, out, "upload:")
	assert.Contains(t, out, "download:")

	_, err = f.execute(t, "bench-storage", "1", "0", "upload")
	require.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = f.execute(t, "bench-storage", "1", "1", "sideways")
	require.ErrorIs(t, err, core.ErrInvalidInput)
}

func newLlamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), "explode") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"content":" answer "}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLlamaClient(t *testing.T) {
	f := newFixture(t)
	llama := newLlamaServer(t)
	prompts := f.file(t, "p.jsonl", []byte(`{"prompt":"one"}`+"\n"+`{"prompt":"explode"}`+"\n"))

	out, err := f.execute(t, "--llama", llama.URL, "llama-client", prompts)
	require.NoError(t, err)
	assert.Contains(t, out, "response: answer")
	assert.Contains(t, out, "successful:    1")
	assert.Contains(t, out, "failed:        1")
}

func TestLlamaBatchUpload(t *testing.T) {
	f := newFixture(t)
	llama := newLlamaServer(t)
	prompts := f.file(t, "p.jsonl", []byte(strings.Join([]string{
		`{"prompt":"first","max_tokens":5}`,
		`# skipped`,
		`{"prompt":"explode"}`,
		`{"prompt":"third"}`,
	}, "\n")))
	resultsPath := filepath.Join(f.dir, "results.jsonl")

	out, err := f.execute(t, "--llama", llama.URL, "llama-batch", "--upload", "--compress", "--concurrency", "2", prompts, resultsPath)
	require.NoError(t, err)
	assert.Contains(t, out, "successful:    2")

	results, err := os.ReadFile(resultsPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(results)), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], `"prompt":"first"`)
	assert.Contains(t, lines[1], `"success":false`)
	assert.Contains(t, lines[2], `"prompt":"third"`)

	m := keyPattern.FindAllStringSubmatch(out, -1)
	require.Len(t, m, 2)
	stored, ok := f.srv.Object("/results/" + m[0][1] + ".jsonl.zst")
	require.True(t, ok)
	zstd, err := transform.NewZstd(3)
	require.NoError(t, err)
	plain, err := zstd.Decode(stored)
	require.NoError(t, err)
	assert.Equal(t, results, plain)

	recBytes, ok := f.srv.Object("/runs/" + m[1][1] + ".cbor")
	require.True(t, ok)
	rec, err := batch.DecodeRecord(recBytes)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Total)
	assert.Equal(t, 1, rec.Failed)
	assert.Equal(t, core.ObjectKey(m[0][1]), rec.Results)
}
