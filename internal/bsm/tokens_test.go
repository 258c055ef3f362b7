package bsm

import "testing"

func TestIsFileToken(t *testing.T) {
	cases := []struct {
		id   TokenID
		want bool
	}{
		{AUTOtherFile32, true},
		{AUTOtherFile64, true},
		{AUTHeader32, false},
		{AUTPath, false},
	}
	for _, c := range cases {
		if got := c.id.IsFileToken(); got != c.want {
			t.Errorf("%v.IsFileToken() = %v, want %v", c.id, got, c.want)
		}
	}
}

func TestTokenIDString(t *testing.T) {
	if got := AUTHeader32.String(); got != "AUT_HEADER32" {
		t.Errorf("AUTHeader32.String() = %q", got)
	}
	if got := TokenID(0xff).String(); got != "UNKNOWN" {
		t.Errorf("unknown id String() = %q, want UNKNOWN", got)
	}
}

func TestUnitSize(t *testing.T) {
	cases := []struct {
		unit byte
		size int
		ok   bool
	}{
		{aurChar, 1, true},
		{aurShort, 2, true},
		{aurInt32, 4, true},
		{aurInt64, 8, true},
		{0x09, 0, false},
	}
	for _, c := range cases {
		size, ok := unitSize(c.unit)
		if size != c.size || ok != c.ok {
			t.Errorf("unitSize(0x%02x) = (%d, %v), want (%d, %v)", c.unit, size, ok, c.size, c.ok)
		}
	}
}
