package transform

import "testing"

func TestEncodeOriginalIsBareIdentity(t *testing.T) {
	k := Encode("a/b/c", Original())
	if k != Key("a/b/c") {
		t.Errorf("Encode(original) = %q, want %q", k, "a/b/c")
	}
}

func TestEncodeDeterministic(t *testing.T) {
	p := Params{MaxWidth: 100, MaxHeight: 50, Format: FormatJPEG, Thumbnail: true, StripMetadata: true}
	k1 := Encode("a/b", p)
	k2 := Encode("a/b", p)
	if k1 != k2 {
		t.Errorf("Encode not deterministic: %q != %q", k1, k2)
	}
}

func TestEncodeFieldOrderIndependent(t *testing.T) {
	a := Params{MaxWidth: 100, MaxHeight: 50, Format: FormatJPEG}
	b := Params{MaxHeight: 50, MaxWidth: 100, Format: FormatJPEG}
	if Encode("id", a) != Encode("id", b) {
		t.Errorf("key should not depend on struct literal field order")
	}
}

func TestEncodeDistinguishesParams(t *testing.T) {
	base := Params{MaxWidth: 100, Format: FormatJPEG, StripMetadata: true}
	variants := []Params{
		{MaxWidth: 200, Format: FormatJPEG, StripMetadata: true},
		{MaxWidth: 100, Format: FormatPNG, StripMetadata: true},
		{MaxWidth: 100, Format: FormatJPEG, Thumbnail: true, StripMetadata: true},
		{MaxWidth: 100, Format: FormatJPEG, StripMetadata: false},
		{MaxWidth: 100, Format: FormatJPEG, Enhance: Enhance{Sharpen: true}, StripMetadata: true},
	}

	seen := map[Key]bool{Encode("id", base): true}
	for i, v := range variants {
		k := Encode("id", v)
		if seen[k] {
			t.Errorf("variant %d collided with a previous key: %q", i, k)
		}
		seen[k] = true
	}
}

func TestEncodeDifferentIdentitiesDiffer(t *testing.T) {
	p := Params{MaxWidth: 100, Format: FormatJPEG}
	if Encode("a", p) == Encode("b", p) {
		t.Errorf("different identities must not collide")
	}
}

func TestMatchesIdentity(t *testing.T) {
	cases := []struct {
		key, id string
		want    bool
	}{
		{"a/b", "a/b", true},
		{"a/b#w=100", "a/b", true},
		{"a/b#w=100.jpeg", "a/b", true},
		{"a/bc#w=100", "a/b", false},
		{"a/bc", "a/b", false},
		{"a/b", "a/bc", false},
	}
	for _, c := range cases {
		if got := MatchesIdentity(c.key, c.id); got != c.want {
			t.Errorf("MatchesIdentity(%q, %q) = %v, want %v", c.key, c.id, got, c.want)
		}
	}
}
