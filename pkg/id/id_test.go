package id

import (
	"errors"
	"testing"
	"time"
)

func TestOrderingMonotonic(t *testing.T) {
	g := NewGenerator()
	NowMs = func() int64 { return 1000 }
	defer func() { NowMs = func() int64 { return time.Now().UnixMilli() } }()

	a := g.Next()
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected a<b")
	}
}

func TestClockRegressionGuard(t *testing.T) {
	g := NewGenerator()
	now := int64(1000)
	NowMs = func() int64 { return now }
	defer func() { NowMs = func() int64 { return time.Now().UnixMilli() } }()

	a := g.Next()
	now = 900
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("expected b>a despite clock regression")
	}
}

func TestParseForms(t *testing.T) {
	want := ID{0x3c, 0xa2, 0xcc, 0xda, 0xdd, 0x0f, 0x49, 0xc8, 0xa7, 0x41, 0x62, 0xaa, 0xc0, 0xd4, 0xeb, 0x62}
	inputs := []string{
		"{3CA2CCDA-DD0F-49c8-A741-62AAC0D4EB62}",
		"3ca2ccda-dd0f-49c8-a741-62aac0d4eb62",
		"3CA2CCDADD0F49C8A74162AAC0D4EB62",
		"  {3ca2ccda-dd0f-49c8-a741-62aac0d4eb62}\n",
	}
	for _, in := range inputs {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q = %s want %s", in, got, want)
		}
	}
	if s := want.String(); s != "3ca2ccda-dd0f-49c8-a741-62aac0d4eb62" {
		t.Fatalf("String()=%s", s)
	}
	if s := want.Braced(); s != "{3CA2CCDA-DD0F-49C8-A741-62AAC0D4EB62}" {
		t.Fatalf("Braced()=%s", s)
	}
}

func TestParseRejects(t *testing.T) {
	inputs := []string{
		"",
		"{3ca2ccda-dd0f-49c8-a741-62aac0d4eb62",
		"3ca2ccda-dd0f-49c8-a741-62aac0d4eb6",
		"3ca2ccdaxdd0f-49c8-a741-62aac0d4eb62",
		"zca2ccda-dd0f-49c8-a741-62aac0d4eb62",
		"3ca2ccda-dd0f49c8--a741-62aac0d4eb62",
	}
	for _, in := range inputs {
		if _, err := Parse(in); !errors.Is(err, ErrInvalid) {
			t.Fatalf("parse %q err=%v want ErrInvalid", in, err)
		}
	}
}

func TestTextRoundtrip(t *testing.T) {
	g := NewGenerator()
	a := g.Next()
	b, err := a.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back ID
	if err := back.UnmarshalText(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != a {
		t.Fatalf("roundtrip %s != %s", back, a)
	}
	if _, ok := FromBytes(a.Bytes()); !ok {
		t.Fatalf("FromBytes rejected 16 bytes")
	}
	if _, ok := FromBytes([]byte{1, 2}); ok {
		t.Fatalf("FromBytes accepted short input")
	}
}
