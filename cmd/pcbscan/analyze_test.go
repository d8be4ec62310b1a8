package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeBoard(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 48, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 48; x++ {
			c := color.RGBA{G: 120, B: 30, A: 255}
			if x > 10 && x < 30 && y > 8 && y < 24 {
				c = color.RGBA{R: 10, G: 10, B: 10, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestAnalyzeCommand(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"U1: RP2040"}}]}`))
	}))
	defer server.Close()

	dir := t.TempDir()
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_BASE_URL", server.URL)
	t.Setenv("LLM_API_KEY", "k")
	imagePath := filepath.Join(dir, "board.png")
	writeBoard(t, imagePath)
	outDir := filepath.Join(dir, "out")
	logPath := filepath.Join(dir, "analysis.log")

	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"analyze", imagePath,
		"--config", "",
		"--out", outDir,
		"--format", "json",
		"--max-clusters", "3",
		"--sample-size", "300",
		"--log-file", logPath,
	})
	require.NoError(t, cmd.Execute())

	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report))
	assert.Equal(t, "U1: RP2040", report["components"])
	assert.Equal(t, "U1: RP2040", report["microcontroller"])

	assert.FileExists(t, filepath.Join(outDir, "report.json"))
	assert.FileExists(t, filepath.Join(outDir, "annotated.png"))

	logged, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "Using image: "+imagePath)
	assert.Contains(t, stderr.String(), "Optimal number of clusters")
}

func TestAnalyzeCommand_Errors(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "openai")
	dir := t.TempDir()

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"analyze"})
	assert.Error(t, cmd.Execute())

	cmd = newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"analyze", filepath.Join(dir, "x.png"), "--config", "", "--format", "pdf", "--log-file", ""})
	assert.ErrorContains(t, cmd.Execute(), "unsupported report format")

	cmd = newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"analyze", filepath.Join(dir, "missing.png"), "--config", "", "--out", dir, "--log-file", ""})
	assert.ErrorContains(t, cmd.Execute(), "open image failed")
}
