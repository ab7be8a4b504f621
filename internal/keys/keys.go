// Package keys implements the grammar of the remote key space.
//
// Three generations of keys coexist on the server:
//
//	file/{hash[0:2]}/{hash[2:4]}/{hash}        content-addressed file bytes
//	user/{email}/...                           legacy per-identity namespace
//	domain/{domain}/user/{localpart}/...       current per-identity namespace
//
// The authorization gate and the sync engine both parse and build keys
// through this package so the two never disagree on segment positions.
package keys

import (
	"errors"
	"fmt"
	"strings"
)

// Generation identifies which layout a key belongs to.
type Generation int

const (
	GenUnknown Generation = iota
	GenFile
	GenLegacy
	GenCurrent
)

func (g Generation) String() string {
	switch g {
	case GenFile:
		return "file"
	case GenLegacy:
		return "legacy"
	case GenCurrent:
		return "current"
	default:
		return "unknown"
	}
}

const (
	segFile   = "file"
	segUser   = "user"
	segDomain = "domain"
	segTrifle = "trifle"
	segLatest = "latest"
	segVer    = "version"
	segProf   = "profile"

	versionIDPrefix  = "version_"
	versionIDHashLen = 16
	hashHexLen       = 64
)

var (
	// ErrInvalidKey reports a malformed or path-traversing key.
	ErrInvalidKey = errors.New("invalid key")
	// ErrInvalidEmail reports an identity that cannot be split into local-part and domain.
	ErrInvalidEmail = errors.New("invalid email")
)

// Key is a parsed remote key.
type Key struct {
	Gen    Generation
	Email  string   // legacy owner
	Domain string   // current owner
	Local  string   // current owner
	Rest   []string // segments after the owner prefix (or after "file")
}

// Validate checks raw for traversal and malformed segments and returns it
// with at most one trailing slash removed.
func Validate(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: key is required", ErrInvalidKey)
	}
	if strings.HasPrefix(raw, "/") {
		return "", fmt.Errorf("%w: starts with '/'", ErrInvalidKey)
	}
	if strings.ContainsAny(raw, "\x00\\") {
		return "", fmt.Errorf("%w: contains forbidden character", ErrInvalidKey)
	}
	clean := strings.TrimSuffix(raw, "/")
	for _, seg := range strings.Split(clean, "/") {
		switch seg {
		case "":
			return "", fmt.Errorf("%w: empty segment", ErrInvalidKey)
		case ".", "..":
			return "", fmt.Errorf("%w: contains %q segment", ErrInvalidKey, seg)
		}
	}
	return clean, nil
}

// Parse validates raw and classifies it. Keys that pass validation but match
// no known generation parse with Gen == GenUnknown and a nil error.
func Parse(raw string) (Key, error) {
	clean, err := Validate(raw)
	if err != nil {
		return Key{}, err
	}
	parts := strings.Split(clean, "/")
	switch parts[0] {
	case segFile:
		return Key{Gen: GenFile, Rest: parts[1:]}, nil
	case segUser:
		if len(parts) < 2 {
			return Key{Rest: parts}, nil
		}
		return Key{Gen: GenLegacy, Email: parts[1], Rest: parts[2:]}, nil
	case segDomain:
		if len(parts) < 4 || parts[2] != segUser {
			return Key{Rest: parts}, nil
		}
		return Key{Gen: GenCurrent, Domain: parts[1], Local: parts[3], Rest: parts[4:]}, nil
	default:
		return Key{Rest: parts}, nil
	}
}

// String renders the key back into its slash-delimited form.
func (k Key) String() string {
	var head []string
	switch k.Gen {
	case GenFile:
		head = []string{segFile}
	case GenLegacy:
		head = []string{segUser, k.Email}
	case GenCurrent:
		head = []string{segDomain, k.Domain, segUser, k.Local}
	}
	return strings.Join(append(head, k.Rest...), "/")
}

// FileHash reports the content hash addressed by a complete file key.
func (k Key) FileHash() (string, bool) {
	if k.Gen != GenFile || len(k.Rest) != 3 {
		return "", false
	}
	hash := k.Rest[2]
	if !IsHash(hash) || k.Rest[0] != hash[0:2] || k.Rest[1] != hash[2:4] {
		return "", false
	}
	return hash, true
}

// Latest reports the trifle and version ids of a latest-marker key.
func (k Key) Latest() (trifleID, versionID string, ok bool) {
	if k.Gen != GenLegacy && k.Gen != GenCurrent {
		return "", "", false
	}
	if len(k.Rest) != 4 || k.Rest[0] != segTrifle || k.Rest[1] != segLatest {
		return "", "", false
	}
	return k.Rest[2], k.Rest[3], true
}

// Version reports the version id of a version-record key.
func (k Key) Version() (string, bool) {
	if k.Gen != GenLegacy && k.Gen != GenCurrent {
		return "", false
	}
	if len(k.Rest) != 3 || k.Rest[0] != segTrifle || k.Rest[1] != segVer {
		return "", false
	}
	return k.Rest[2], true
}

// IsProfile reports whether k is an owner's profile record.
func (k Key) IsProfile() bool {
	return (k.Gen == GenLegacy || k.Gen == GenCurrent) && len(k.Rest) == 1 && k.Rest[0] == segProf
}

// FileKey returns the global key for content hash.
func FileKey(hash string) string {
	if len(hash) < 4 {
		return segFile + "/" + hash
	}
	return fmt.Sprintf("%s/%s/%s/%s", segFile, hash[0:2], hash[2:4], hash)
}

// VersionID derives the deterministic version id of a content hash.
func VersionID(hash string) string {
	if len(hash) > versionIDHashLen {
		hash = hash[:versionIDHashLen]
	}
	return versionIDPrefix + hash
}

// IsHash reports whether s looks like a lowercase hex SHA-256 digest.
func IsHash(s string) bool {
	if len(s) != hashHexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
