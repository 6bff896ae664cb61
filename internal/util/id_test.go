package util

import "testing"

func TestNewIDCarriesPrefix(t *testing.T) {
	id := NewID("jti")
	if len(id) != len("jti_")+32 {
		t.Fatalf("unexpected id length for %q", id)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected distinct ids")
	}
}

func TestIsPersistentID(t *testing.T) {
	cases := []struct {
		name string
		id   string
		want bool
	}{
		{"hyphenated uuid", "11111111-1111-1111-1111-111111111111", true},
		{"unhyphenated hex of the same length is not a uuid", "111111111111111111111111111111111111", false},
		{"client counter id", "local-3", false},
		{"minted id", NewID("tmp"), false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsPersistentID(tc.id); got != tc.want {
				t.Fatalf("IsPersistentID(%q) = %v, want %v", tc.id, got, tc.want)
			}
		})
	}
}
