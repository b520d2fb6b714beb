package log

import (
	"bytes"
	"encoding/json"
	"errors"
	stdlog "log"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newBufferLogger(buf *bytes.Buffer, opts ...LoggerOption) Logger {
	base := []LoggerOption{
		WithLevel(DebugLevel),
		WithFormatter(&TextFormatter{DisableTimestamp: true, DisableCaller: true}),
		WithOutput(NewWriterOutput(buf)),
	}
	return NewLogger(append(base, opts...)...)
}

func TestTextFormatterFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)
	l.With(Component("physlog")).Info("stream opened", Uint64("tail", 42), Str("alias", "my log"))

	require.Equal(t, "INFO  stream opened alias=\"my log\" component=physlog tail=42\n", buf.String())
}

func TestLevelGate(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)
	l.SetLevel(WarnLevel)
	l.Info("dropped")
	l.Debugf("dropped", "k", 1)
	l.Warn("kept")
	require.Equal(t, WarnLevel, l.GetLevel())
	require.Equal(t, "WARN  kept\n", buf.String())
}

func TestDerivedLoggerSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root := newBufferLogger(&buf)
	child := root.WithComponent("alloc")
	root.SetLevel(ErrorLevel)
	child.Warn("dropped")
	require.Empty(t, buf.String())
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithFormatter(&JSONFormatter{}), WithOutput(NewWriterOutput(&buf)))
	l.WithError(errors.New("disk gone")).Error("append failed", Int("extents", 3))

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, "ERROR", m["level"])
	require.Equal(t, "append failed", m["msg"])
	require.Equal(t, "disk gone", m["error"])
	require.EqualValues(t, 3, m["extents"])
	require.Contains(t, m["caller"], "log_test.go")
}

func TestKeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)
	l.Infof("kv", "a", 1, 2, "x", "dangling")
	require.Equal(t, "INFO  kv a=1 arg2=x arg4=dangling\n", buf.String())
}

func TestRedactionAndSampling(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf, WithRedactions("secret"), WithSampling(1, 3))
	for i := 0; i < 4; i++ {
		l.Info("tick", Str("secret", "hunter2"))
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.NotContains(t, buf.String(), "hunter2")
	require.Contains(t, lines[0], "secret=[REDACTED]")
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"": InfoLevel, "DEBUG": DebugLevel, "warning": WarnLevel, "error": ErrorLevel} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	require.Error(t, err)
}

func TestApplyConfig(t *testing.T) {
	l, err := ApplyConfig(&Config{Level: "debug", Format: "json", Outputs: []OutputConfig{{Type: "null"}}})
	require.NoError(t, err)
	require.Equal(t, DebugLevel, l.GetLevel())

	_, err = ApplyConfig(&Config{Format: "xml"})
	require.Error(t, err)
	_, err = ApplyConfig(&Config{Outputs: []OutputConfig{{Type: "file"}}})
	require.Error(t, err)
}

func TestRedirectStdLog(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf)
	restore := RedirectStdLog(l)
	stdlog.Printf("pebble says %d", 7)
	restore()
	require.Equal(t, "INFO  pebble says 7 component=stdlog\n", buf.String())

	buf.Reset()
	ToStdLogger(l, WarnLevel).Println("bridged")
	require.Equal(t, "WARN  bridged\n", buf.String())
}
