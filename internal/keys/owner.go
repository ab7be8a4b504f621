package keys

import (
	"fmt"
	"strings"
)

// Owner is an authenticated identity split the way both key generations need it.
type Owner struct {
	Email  string
	Local  string
	Domain string
}

// ParseEmail lower-cases raw and splits it on the last '@'.
func ParseEmail(raw string) (Owner, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return Owner{}, fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	if strings.ContainsAny(email, "/\\\x00") {
		return Owner{}, fmt.Errorf("%w: %q contains a path separator", ErrInvalidEmail, raw)
	}
	return Owner{Email: email, Local: email[:at], Domain: email[at+1:]}, nil
}

// Owns reports whether k lives inside this owner's namespace.
func (o Owner) Owns(k Key) bool {
	switch k.Gen {
	case GenLegacy:
		return k.Email == o.Email
	case GenCurrent:
		return k.Domain == o.Domain && k.Local == o.Local
	default:
		return false
	}
}

// Root returns the owner's namespace key for gen.
func (o Owner) Root(gen Generation) Key {
	switch gen {
	case GenLegacy:
		return Key{Gen: GenLegacy, Email: o.Email}
	default:
		return Key{Gen: GenCurrent, Domain: o.Domain, Local: o.Local}
	}
}

func (o Owner) key(gen Generation, rest ...string) string {
	k := o.Root(gen)
	k.Rest = rest
	return k.String()
}

// Prefix is the namespace root as a string.
func (o Owner) Prefix(gen Generation) string { return o.key(gen) }

// ProfileKey addresses the owner's profile record.
func (o Owner) ProfileKey(gen Generation) string { return o.key(gen, segProf) }

// VersionKey addresses one version record.
func (o Owner) VersionKey(gen Generation, versionID string) string {
	return o.key(gen, segTrifle, segVer, versionID)
}

// LatestPrefix is the root under which every latest marker lives.
func (o Owner) LatestPrefix(gen Generation) string { return o.key(gen, segTrifle, segLatest) }

// LatestEntityPrefix holds every marker ever written for one trifle.
func (o Owner) LatestEntityPrefix(gen Generation, trifleID string) string {
	return o.key(gen, segTrifle, segLatest, trifleID)
}

// LatestKey addresses one latest marker.
func (o Owner) LatestKey(gen Generation, trifleID, versionID string) string {
	return o.key(gen, segTrifle, segLatest, trifleID, versionID)
}

// Rebase moves k, which must belong to o, into generation to.
func (o Owner) Rebase(k Key, to Generation) (Key, error) {
	if !o.Owns(k) {
		return Key{}, fmt.Errorf("%w: %s is outside the namespace of %s", ErrInvalidKey, k, o.Email)
	}
	out := o.Root(to)
	out.Rest = append([]string(nil), k.Rest...)
	return out, nil
}
