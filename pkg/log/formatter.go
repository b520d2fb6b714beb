package log

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// TextFormatter renders "time LEVEL message k=v ... caller=file:line".
type TextFormatter struct {
	// DisableTimestamp drops the leading timestamp (useful in tests).
	DisableTimestamp bool
	// DisableCaller drops the caller field.
	DisableCaller bool
}

// Format implements Formatter.
func (f *TextFormatter) Format(e *Entry) ([]byte, error) {
	var b strings.Builder
	if !f.DisableTimestamp {
		b.WriteString(e.Timestamp.Format(timeLayout))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s %s", e.Level, e.Message)
	for _, k := range sortedKeys(e.Fields) {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(textValue(e.Fields[k]))
	}
	if !f.DisableCaller && e.Caller != "" {
		b.WriteString(" caller=")
		b.WriteString(e.Caller)
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func textValue(v interface{}) string {
	var s string
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case string:
		s = x
	case error:
		s = x.Error()
	case time.Duration:
		s = x.String()
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

// JSONFormatter renders one JSON object per line. Entry fields are merged at
// the top level; the reserved keys time, level, msg and caller win.
type JSONFormatter struct{}

// Format implements Formatter.
func (f *JSONFormatter) Format(e *Entry) ([]byte, error) {
	m := make(map[string]interface{}, len(e.Fields)+4)
	for k, v := range e.Fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		m[k] = v
	}
	m["time"] = e.Timestamp.Format(timeLayout)
	m["level"] = e.Level.String()
	m["msg"] = e.Message
	if e.Caller != "" {
		m["caller"] = e.Caller
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func sortedKeys(m Fields) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
