package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BaSui01/crewflow/config"
	"github.com/BaSui01/crewflow/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute_Commands(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		stdout   string
		stderr   string
	}{
		{name: "no args", args: nil, wantCode: exitUsage, stderr: "Usage:"},
		{name: "help", args: []string{"help"}, wantCode: exitOK, stdout: "Commands:"},
		{name: "version", args: []string{"version"}, wantCode: exitOK, stdout: "crewflow dev"},
		{name: "unknown", args: []string{"deploy"}, wantCode: exitUsage, stderr: "Unknown command: deploy"},
		{name: "list", args: []string{"list"}, wantCode: exitOK, stdout: "event-planning"},
		{name: "run without crew", args: []string{"run"}, wantCode: exitUsage, stderr: "crewflow run <crew>"},
		{name: "run bad flag", args: []string{"run", "event-planning", "--bogus"}, wantCode: exitUsage},
		{name: "run bad input", args: []string{"run", "event-planning", "--input", "novalue"}, wantCode: exitUsage},
		{
			name:     "run missing config",
			args:     []string{"run", "event-planning", "--config", "/nonexistent/crewflow.yaml"},
			wantCode: exitError,
			stderr:   "Failed to load config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := execute(context.Background(), tt.args, strings.NewReader(""), &stdout, &stderr)
			assert.Equal(t, tt.wantCode, code)
			if tt.stdout != "" {
				assert.Contains(t, stdout.String(), tt.stdout)
			}
			if tt.stderr != "" {
				assert.Contains(t, stderr.String(), tt.stderr)
			}
		})
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crewflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crew:\n  max_iterations: -1\n"), 0o600))

	_, err := loadConfig(path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestKickoff(t *testing.T) {
	t.Run("prints final result", func(t *testing.T) {
		a := newTestApp(t, mocks.NewMockProvider().WithResponse("Go is a compiled language."), nil)

		var out bytes.Buffer
		code := kickoff(context.Background(), a, echoCrew, map[string]any{"question": "what is Go?"}, nil, &out)
		assert.Equal(t, exitOK, code)
		assert.Contains(t, out.String(), "## Final Result")
		assert.Contains(t, out.String(), "Go is a compiled language.")
	})

	t.Run("unknown crew", func(t *testing.T) {
		a := newTestApp(t, mocks.NewMockProvider(), nil)
		code := kickoff(context.Background(), a, "nope", nil, nil, &bytes.Buffer{})
		assert.Equal(t, exitUsage, code)
	})

	t.Run("llm failure", func(t *testing.T) {
		a := newTestApp(t, mocks.NewMockProvider().WithError(errors.New("connection refused")), nil)
		var out bytes.Buffer
		code := kickoff(context.Background(), a, echoCrew, nil, nil, &out)
		assert.Equal(t, exitError, code)
		assert.NotContains(t, out.String(), "## Final Result")
	})
}

func fakeOllama(t *testing.T, models ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		var b strings.Builder
		b.WriteString(`{"models":[`)
		for i, m := range models {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(`{"name":"` + m + `"}`)
		}
		b.WriteString(`]}`)
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckHealth(t *testing.T) {
	t.Run("model pulled", func(t *testing.T) {
		srv := fakeOllama(t, "deepseek-r1:8b", "llama3.2:latest")
		a := newTestApp(t, mocks.NewMockProvider(), func(cfg *config.Config) {
			cfg.LLM.Model = "ollama/deepseek-r1:8b"
			cfg.LLM.BaseURL = srv.URL
		})

		var out bytes.Buffer
		assert.Equal(t, exitOK, checkHealth(context.Background(), a, &out))
		assert.Contains(t, out.String(), "model      pass deepseek-r1:8b")
		assert.Contains(t, out.String(), "OK")
	})

	t.Run("model missing", func(t *testing.T) {
		srv := fakeOllama(t, "llama3.2:latest")
		a := newTestApp(t, mocks.NewMockProvider(), func(cfg *config.Config) {
			cfg.LLM.Model = "ollama/deepseek-r1:8b"
			cfg.LLM.BaseURL = srv.URL
		})

		var out bytes.Buffer
		assert.Equal(t, exitError, checkHealth(context.Background(), a, &out))
		assert.Contains(t, out.String(), "ollama pull deepseek-r1:8b")
	})

	t.Run("llm down", func(t *testing.T) {
		a := newTestApp(t, mocks.NewMockProvider().WithError(errors.New("connection refused")), nil)

		var out bytes.Buffer
		assert.Equal(t, exitError, checkHealth(context.Background(), a, &out))
		assert.Contains(t, out.String(), "llm        fail")
		assert.NotContains(t, out.String(), "model")
	})
}

func TestExecute_Migrate(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "crewflow.yaml")
	cfgYAML := "database:\n  driver: sqlite\n  name: " + filepath.Join(dir, "runs.db") + "\n  max_open_conns: 1\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))

	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), []string{"migrate", "--config", cfgPath, "up"}, strings.NewReader(""), &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "Current version: 2")

	stdout.Reset()
	code = execute(context.Background(), []string{"migrate", "--config", cfgPath, "status"}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitOK, code)
	assert.Contains(t, stdout.String(), "Pending: 0")

	code = execute(context.Background(), []string{"migrate", "--config", cfgPath}, strings.NewReader(""), &stdout, &stderr)
	assert.Equal(t, exitUsage, code)
}
