package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput redirects logger output to a buffer for testing.
// Returns the buffer and a cleanup function to restore original output.
func captureOutput() (*bytes.Buffer, func()) {
	buf := new(bytes.Buffer)

	mu.Lock()
	originalOutput := output
	originalColor := useColor
	output = buf
	useColor = false
	mu.Unlock()

	reconfigure()

	cleanup := func() {
		mu.Lock()
		output = originalOutput
		useColor = originalColor
		mu.Unlock()
		currentFormat.Store("text")
		reconfigure()
	}

	return buf, cleanup
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		present []string
		absent  []string
	}{
		{"DEBUG", []string{"debug message", "info message", "warn message", "error message"}, nil},
		{"INFO", []string{"info message", "warn message", "error message"}, []string{"debug message"}},
		{"WARN", []string{"warn message", "error message"}, []string{"debug message", "info message"}},
		{"ERROR", []string{"error message"}, []string{"debug message", "info message", "warn message"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf, cleanup := captureOutput()
			defer cleanup()

			SetLevel(tt.level)

			Debug("debug message")
			Info("info message")
			Warn("warn message")
			Error("error message")

			out := buf.String()
			for _, s := range tt.present {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.absent {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Run("CaseInsensitive", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("DeBuG")
		Debug("test message")
		assert.Contains(t, buf.String(), "test message")
		assert.Equal(t, LevelDebug, GetLevel())
	})

	t.Run("IgnoresInvalidValues", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		SetLevel("INVALID")
		Debug("debug message")
		Info("info message")

		assert.NotContains(t, buf.String(), "debug message")
		assert.Contains(t, buf.String(), "info message")
	})

	t.Run("WarningAlias", func(t *testing.T) {
		l, ok := ParseLevel("warning")
		assert.True(t, ok)
		assert.Equal(t, LevelWarn, l)
	})
}

func TestMessageFormatting(t *testing.T) {
	t.Run("TimestampAndLevel", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Info("bind completed")

		out := buf.String()
		assert.Regexp(t, `\[\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\]`, out)
		assert.Contains(t, out, "[INFO]")
	})

	t.Run("StructuredFields", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Info("bind completed", KeyMechanism, "PLAIN", KeyResultCode, 49)

		out := buf.String()
		assert.Contains(t, out, "mechanism=PLAIN")
		assert.Contains(t, out, "result_code=49")
	})

	t.Run("QuotesValuesWithSpaces", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Info("mapped", BindDN("cn=John Doe,dc=example,dc=com"))

		assert.Contains(t, buf.String(), `bind_dn="cn=John Doe,dc=example,dc=com"`)
	})

	t.Run("GroupsFlattenToDottedKeys", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		With().WithGroup("passthrough").Info("probe", Server("ldap1:389"))

		assert.Contains(t, buf.String(), "passthrough.server=ldap1:389")
	})

	t.Run("NilErrorIsDropped", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")
		Info("no error", Err(nil))
		Info("with error", Err(errors.New("boom")))

		out := buf.String()
		assert.Equal(t, 1, strings.Count(out, "error="))
		assert.Contains(t, out, "error=boom")
	})
}

func TestJSONFormat(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("INFO")
	SetFormat("json")
	Info("bind completed", KeyMechanism, "DIGEST-MD5")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "bind completed", rec["msg"])
	assert.Equal(t, "DIGEST-MD5", rec["mechanism"])
	assert.Equal(t, "INFO", rec["level"])
}

func TestContextLogging(t *testing.T) {
	buf, cleanup := captureOutput()
	defer cleanup()

	SetLevel("DEBUG")

	lc := NewLogContext("c0ffee", "192.0.2.10").WithMechanism("PLAIN").WithBindDN("uid=alice,ou=people")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "bind completed", KeyResultCode, 0)

	out := buf.String()
	assert.Contains(t, out, "connection_id=c0ffee")
	assert.Contains(t, out, "client_ip=192.0.2.10")
	assert.Contains(t, out, "mechanism=PLAIN")
	assert.Contains(t, out, "bind_dn=uid=alice,ou=people")
	assert.Less(t, strings.Index(out, "connection_id"), strings.Index(out, "result_code"))

	buf.Reset()
	DebugCtx(context.Background(), "no context")
	assert.NotContains(t, buf.String(), "connection_id")
}

func TestLogContextClone(t *testing.T) {
	lc := NewLogContext("id", "10.0.0.1")
	withMech := lc.WithMechanism("GSSAPI")

	assert.Empty(t, lc.Mechanism)
	assert.Equal(t, "GSSAPI", withMech.Mechanism)
	assert.Nil(t, (*LogContext)(nil).Clone())
	assert.Nil(t, FromContext(context.Background()))
	assert.Zero(t, (*LogContext)(nil).DurationMs())
}

func TestInitFileOutput(t *testing.T) {
	path := t.TempDir() + "/ldapauth.log"

	require.NoError(t, Init(Config{Level: "INFO", Format: "text", Output: path}))
	Info("written to file")
	t.Cleanup(func() {
		_ = Init(Config{Output: "stdout"})
	})

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestConcurrentLogging(t *testing.T) {
	t.Run("ConcurrentLogsDoNotRace", func(t *testing.T) {
		buf, cleanup := captureOutput()
		defer cleanup()

		SetLevel("INFO")

		const numGoroutines = 10
		const logsPerGoroutine = 100

		var wg sync.WaitGroup
		wg.Add(numGoroutines)

		for i := 0; i < numGoroutines; i++ {
			go func(id int) {
				defer wg.Done()
				for j := 0; j < logsPerGoroutine; j++ {
					Info("bind", "id", id, "iteration", j)
				}
			}(i)
		}

		wg.Wait()

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		assert.Equal(t, numGoroutines*logsPerGoroutine, len(lines))
	})

	t.Run("ConcurrentLevelChanges", func(t *testing.T) {
		// bytes.Buffer is not safe across reconfigured handlers
		InitWithWriter(io.Discard, "DEBUG", "text", false)
		defer func() {
			mu.Lock()
			output = os.Stdout
			mu.Unlock()
			reconfigure()
		}()

		var wg sync.WaitGroup
		wg.Add(10)

		for i := 0; i < 5; i++ {
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					if j%2 == 0 {
						SetLevel("DEBUG")
					} else {
						SetLevel("ERROR")
					}
				}
			}()
			go func(id int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					Debug("debug", "id", id)
					Error("error", "id", id)
				}
			}(i)
		}

		require.NotPanics(t, wg.Wait)
	})
}
