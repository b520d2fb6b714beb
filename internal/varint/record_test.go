package varint

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRecordRoundtrip(t *testing.T) {
	payloads := [][]byte{nil, []byte("a"), bytes.Repeat([]byte("x"), 200)}
	var buf []byte
	for _, p := range payloads {
		buf = AppendRecord(buf, p)
	}
	want := 0
	for _, p := range payloads {
		want += RecordSize(len(p))
	}
	if len(buf) != want {
		t.Fatalf("framed size %d want %d", len(buf), want)
	}

	r := bytes.NewReader(buf)
	for i, p := range payloads {
		got, err := ReadRecord(r, 0)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if !bytes.Equal(got, p) {
			t.Fatalf("record %d mismatch", i)
		}
	}
	if _, err := ReadRecord(r, 0); !errors.Is(err, ErrTruncated) {
		t.Fatalf("read past end err=%v want ErrTruncated", err)
	}

	rest := buf
	for i, p := range payloads {
		got, n, err := Record(rest)
		if err != nil {
			t.Fatalf("slice record %d: %v", i, err)
		}
		if !bytes.Equal(got, p) {
			t.Fatalf("slice record %d mismatch", i)
		}
		rest = rest[n:]
	}
}

func TestRecordShortPayload(t *testing.T) {
	buf := AppendRecord(nil, []byte("hello"))
	short := buf[:len(buf)-2]
	if _, err := ReadRecord(bytes.NewReader(short), 0); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err=%v want ErrTruncated", err)
	}
	if _, _, err := Record(short); !errors.Is(err, ErrTruncated) {
		t.Fatalf("err=%v want ErrTruncated", err)
	}
}

func TestRecordLimit(t *testing.T) {
	buf := AppendRecord(nil, []byte(strings.Repeat("z", 64)))
	if _, err := ReadRecord(bytes.NewReader(buf), 16); !errors.Is(err, ErrRecordTooLarge) {
		t.Fatalf("err=%v want ErrRecordTooLarge", err)
	}
}
