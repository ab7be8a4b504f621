package keys

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "domain/example.com/user/alice/profile", want: "domain/example.com/user/alice/profile"},
		{raw: "domain/example.com/user/alice/trifle/latest/", want: "domain/example.com/user/alice/trifle/latest"},
		{raw: "", wantErr: true},
		{raw: "/etc/passwd", wantErr: true},
		{raw: "user/../../etc", wantErr: true},
		{raw: "user/a@b.c/./x", wantErr: true},
		{raw: "user//x", wantErr: true},
		{raw: "user/a\\b", wantErr: true},
	}

	for _, tt := range tests {
		got, err := Validate(tt.raw)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("Validate(%q): expected ErrInvalidKey, got %v", tt.raw, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Validate(%q): %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("Validate(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseGenerations(t *testing.T) {
	tests := []struct {
		raw  string
		gen  Generation
		rest string
	}{
		{raw: "file/ab/cd/abcd", gen: GenFile, rest: "ab/cd/abcd"},
		{raw: "user/alice@example.com/profile", gen: GenLegacy, rest: "profile"},
		{raw: "domain/example.com/user/alice/trifle/version/v1", gen: GenCurrent, rest: "trifle/version/v1"},
		{raw: "domain/example.com/user/alice", gen: GenCurrent, rest: ""},
		{raw: "domain/example.com/group/alice", gen: GenUnknown},
		{raw: "domain/example.com", gen: GenUnknown},
		{raw: "other/thing", gen: GenUnknown},
		{raw: "user", gen: GenUnknown},
	}

	for _, tt := range tests {
		k, err := Parse(tt.raw)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tt.raw, err)
		}
		if k.Gen != tt.gen {
			t.Fatalf("Parse(%q).Gen = %s, want %s", tt.raw, k.Gen, tt.gen)
		}
		if tt.gen != GenUnknown && strings.Join(k.Rest, "/") != tt.rest {
			t.Fatalf("Parse(%q).Rest = %v, want %q", tt.raw, k.Rest, tt.rest)
		}
		if k.String() != tt.raw {
			t.Fatalf("Parse(%q).String() = %q", tt.raw, k.String())
		}
	}
}

func TestFileKeyRoundTrip(t *testing.T) {
	hash := strings.Repeat("ab", 32)
	key := FileKey(hash)
	if key != "file/ab/ab/"+hash {
		t.Fatalf("unexpected file key %q", key)
	}
	k, err := Parse(key)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	got, ok := k.FileHash()
	if !ok || got != hash {
		t.Fatalf("expected hash %q, got %q (ok=%v)", hash, got, ok)
	}

	mismatched, _ := Parse("file/00/ab/" + hash)
	if _, ok := mismatched.FileHash(); ok {
		t.Fatal("expected fan-out mismatch to be rejected")
	}
	short, _ := Parse("file/ab/ab")
	if _, ok := short.FileHash(); ok {
		t.Fatal("expected partial file key to be rejected")
	}
}

func TestVersionID(t *testing.T) {
	hash := "0123456789abcdef" + strings.Repeat("f", 48)
	if got := VersionID(hash); got != "version_0123456789abcdef" {
		t.Fatalf("unexpected version id %q", got)
	}
}

func TestParseEmail(t *testing.T) {
	o, err := ParseEmail("Alice+Tag@Example.COM")
	if err != nil {
		t.Fatalf("parse email: %v", err)
	}
	if o.Email != "alice+tag@example.com" || o.Local != "alice+tag" || o.Domain != "example.com" {
		t.Fatalf("unexpected owner %#v", o)
	}

	// Split happens on the last '@'.
	o, err = ParseEmail("a@b@example.com")
	if err != nil {
		t.Fatalf("parse email: %v", err)
	}
	if o.Local != "a@b" || o.Domain != "example.com" {
		t.Fatalf("unexpected owner %#v", o)
	}

	for _, raw := range []string{"", "alice", "@example.com", "alice@", "al/ice@example.com"} {
		if _, err := ParseEmail(raw); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("ParseEmail(%q): expected ErrInvalidEmail, got %v", raw, err)
		}
	}
}

func TestOwnerLayout(t *testing.T) {
	o, _ := ParseEmail("alice@example.com")

	if got := o.ProfileKey(GenCurrent); got != "domain/example.com/user/alice/profile" {
		t.Fatalf("current profile key %q", got)
	}
	if got := o.ProfileKey(GenLegacy); got != "user/alice@example.com/profile" {
		t.Fatalf("legacy profile key %q", got)
	}
	latest := o.LatestKey(GenCurrent, "trifle_01", "version_02")
	if latest != "domain/example.com/user/alice/trifle/latest/trifle_01/version_02" {
		t.Fatalf("latest key %q", latest)
	}

	k, _ := Parse(latest)
	tid, vid, ok := k.Latest()
	if !ok || tid != "trifle_01" || vid != "version_02" {
		t.Fatalf("Latest() = %q %q %v", tid, vid, ok)
	}
	vk, _ := Parse(o.VersionKey(GenLegacy, "version_02"))
	if vid, ok := vk.Version(); !ok || vid != "version_02" {
		t.Fatalf("Version() = %q %v", vid, ok)
	}
	pk, _ := Parse(o.ProfileKey(GenLegacy))
	if !pk.IsProfile() {
		t.Fatal("expected profile key")
	}
}

func TestRebase(t *testing.T) {
	alice, _ := ParseEmail("alice@example.com")
	bob, _ := ParseEmail("bob@example.com")

	legacy, _ := Parse(alice.VersionKey(GenLegacy, "version_1"))
	current, err := alice.Rebase(legacy, GenCurrent)
	if err != nil {
		t.Fatalf("rebase: %v", err)
	}
	if current.String() != alice.VersionKey(GenCurrent, "version_1") {
		t.Fatalf("unexpected rebased key %q", current.String())
	}

	if _, err := bob.Rebase(legacy, GenCurrent); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected foreign key rebase to fail, got %v", err)
	}
}
