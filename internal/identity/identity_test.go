package identity_test

import (
	"testing"

	"clipforge/internal/identity"
)

func TestKeyClipSlug(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://clips.twitch.tv/FunnySlugHere", "FunnySlugHere"},
		{"https://clips.twitch.tv/FunnySlugHere/", "FunnySlugHere"},
		{"https://www.twitch.tv/somechannel/clip/FunnySlugHere?tt_medium=mobile", "FunnySlugHere"},
		{"https://m.twitch.tv/somechannel/clip/FunnySlugHere", "FunnySlugHere"},
	}
	for _, tc := range cases {
		if got := identity.Key(tc.url); got != tc.want {
			t.Errorf("Key(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}

func TestKeyNormalizesGenericURLs(t *testing.T) {
	a := identity.Key("https://example.com/videos/123")
	b := identity.Key("https://EXAMPLE.com/videos/123/")
	c := identity.Key("https://example.com/videos/123?query=1#frag")
	if a != b || b != c {
		t.Fatalf("expected identical identities, got %q / %q / %q", a, b, c)
	}
	other := identity.Key("https://example.com/videos/124")
	if other == a {
		t.Fatalf("distinct paths must not collide: %q", other)
	}
}

func TestKeyEmptyAndUnparseable(t *testing.T) {
	if got := identity.Key("   "); got != "" {
		t.Fatalf("expected empty identity, got %q", got)
	}
	if got := identity.Key("not a url"); got != "not a url" {
		t.Fatalf("expected raw fallback, got %q", got)
	}
}

func TestHashStable(t *testing.T) {
	a := identity.Hash("https://example.com/videos/123")
	b := identity.Hash("https://example.com/videos/123?utm=x")
	if a != b {
		t.Fatalf("hash should ignore query noise: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256, got %q", a)
	}
}
