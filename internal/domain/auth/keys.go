// Package auth authenticates callers of the decision API with static API keys.
//
// Keys are configured as hashes, never plaintext: SHA-256 hex (optionally
// "sha256:" prefixed) for cheap CI-style keys, or Argon2id PHC strings for
// keys that must resist offline guessing.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when no configured key matches.
var ErrInvalidKey = errors.New("invalid api key")

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// APIKey is one configured caller credential.
type APIKey struct {
	// Hash is the stored key hash (SHA-256 hex or Argon2id PHC format).
	Hash string
	// Name labels the caller for logs and audit.
	Name string
}

// argon2idParams follows the OWASP minimum for Argon2id
// (46 MiB memory, 1 iteration, 1 lane).
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKey returns the SHA-256 hex hash of the raw key.
func HashKey(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// HashKeyArgon2id returns an Argon2id hash of the raw key in PHC format
// ($argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>).
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the algorithm of a stored hash: "argon2id",
// "sha256", or "unknown".
func DetectHashType(stored string) string {
	if strings.HasPrefix(stored, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(stored, "sha256:") {
		return "sha256"
	}
	if len(stored) == 64 && isHex(stored) {
		return "sha256"
	}
	return "unknown"
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey checks a raw key against a stored hash in constant time for the
// SHA-256 forms. Returns ErrUnknownHashType for unrecognized formats.
func VerifyKey(rawKey, stored string) (bool, error) {
	switch DetectHashType(stored) {
	case "argon2id":
		return compareArgon2id(rawKey, stored)
	case "sha256":
		expected := strings.TrimPrefix(stored, "sha256:")
		computed := HashKey(rawKey)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil
	default:
		return false, ErrUnknownHashType
	}
}

// compareArgon2id wraps argon2id comparison with panic recovery: the
// underlying library panics on PHC strings with degenerate parameters.
func compareArgon2id(rawKey, stored string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, stored)
}

// Keyring verifies raw keys against the configured set.
type Keyring struct {
	bySHA  map[string]string // sha256 hex -> caller name, direct-lookup fast path
	argon  []APIKey          // argon2id keys, verified by iteration
	loaded int
}

// NewKeyring builds a keyring from configured keys. Keys with unrecognized
// hash formats are rejected so typos fail at startup, not at request time.
func NewKeyring(keys []APIKey) (*Keyring, error) {
	kr := &Keyring{bySHA: make(map[string]string)}
	for _, k := range keys {
		switch DetectHashType(k.Hash) {
		case "sha256":
			kr.bySHA[strings.ToLower(strings.TrimPrefix(k.Hash, "sha256:"))] = k.Name
		case "argon2id":
			kr.argon = append(kr.argon, k)
		default:
			return nil, fmt.Errorf("%w: key %q", ErrUnknownHashType, k.Name)
		}
		kr.loaded++
	}
	return kr, nil
}

// Empty reports whether no keys are configured. An empty keyring means the
// decision API runs open (local development mode).
func (kr *Keyring) Empty() bool { return kr.loaded == 0 }

// Verify checks a raw key and returns the caller name on success.
// Returns ErrInvalidKey when no configured key matches.
func (kr *Keyring) Verify(rawKey string) (string, error) {
	if name, ok := kr.bySHA[HashKey(rawKey)]; ok {
		return name, nil
	}
	for _, k := range kr.argon {
		match, err := compareArgon2id(rawKey, k.Hash)
		if err != nil {
			continue
		}
		if match {
			return k.Name, nil
		}
	}
	return "", ErrInvalidKey
}
