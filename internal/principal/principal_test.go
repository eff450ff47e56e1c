package principal

import "testing"

func TestNewRoundTripsTag(t *testing.T) {
	p, err := New(TagVault)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Tag() != TagVault {
		t.Fatalf("Tag() = %v, want %v", p.Tag(), TagVault)
	}
	if p.IsZero() {
		t.Fatalf("freshly generated principal reported as zero")
	}
}

func TestNewIsUnlinkable(t *testing.T) {
	a, _ := New(TagMember)
	b, _ := New(TagMember)
	if a == b {
		t.Fatalf("two calls to New produced identical principals")
	}
}

func TestBytesAndFromBytesRoundTrip(t *testing.T) {
	p, _ := New(TagContent)
	got, err := FromBytes(p.Bytes())
	if err != nil {
		t.Fatalf("FromBytes: %v", err)
	}
	if got != p {
		t.Fatalf("FromBytes(Bytes()) = %v, want %v", got, p)
	}
}

func TestFromBytesRejectsWrongLength(t *testing.T) {
	if _, err := FromBytes(make([]byte, Size-1)); err != ErrMalformed {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	if _, err := FromBytes(make([]byte, Size+1)); err != ErrMalformed {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestStringAndParseRoundTrip(t *testing.T) {
	p, _ := New(TagUpload)
	got, err := Parse(p.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != p {
		t.Fatalf("Parse(String()) = %v, want %v", got, p)
	}
}

func TestParseRejectsMalformedHex(t *testing.T) {
	if _, err := Parse("not-hex"); err == nil {
		t.Fatalf("expected error parsing malformed hex")
	}
}

func TestZeroValueIsZero(t *testing.T) {
	var p Principal
	if !p.IsZero() {
		t.Fatalf("zero value Principal reported as non-zero")
	}
}
