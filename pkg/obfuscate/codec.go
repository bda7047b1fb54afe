// Package obfuscate masks short secrets, such as API keys, before they are
// written to disk.
//
// The mask is a repeating-key XOR with a key derived from local machine
// attributes. It keeps a key from being readable at a glance in
// settings.json. It is not encryption: anyone who can read the file and
// knows the machine attributes can recover the secret. Masked values are
// not portable between machines.
package obfuscate

import (
	"crypto/sha256"
	"encoding/base64"
	"os"
	"runtime"
	"strings"
	"unicode/utf8"
)

// Marker prefixes masked values so they can be told apart from legacy
// plain-text values.
const Marker = "ENC:"

const appTag = "doitnow-settings-v1"

// Codec masks and unmasks strings with a fixed key.
type Codec struct {
	key []byte
}

// New returns a Codec using key. An empty key is replaced by the machine key.
func New(key []byte) *Codec {
	if len(key) == 0 {
		key = DeriveKey("")
	}
	return &Codec{key: key}
}

// NewForMachine returns a Codec keyed to the current machine.
func NewForMachine() *Codec {
	return New(DeriveKey(""))
}

// DeriveKey hashes seed into a 32-byte key. An empty seed is replaced by
// MachineSeed.
func DeriveKey(seed string) []byte {
	if seed == "" {
		seed = MachineSeed()
	}
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}

// MachineSeed joins attributes that are stable for one user on one machine.
func MachineSeed() string {
	host, _ := os.Hostname()
	home, _ := os.UserHomeDir()
	return strings.Join([]string{host, runtime.GOOS, runtime.GOARCH, home, appTag}, "|")
}

// IsEncoded reports whether s carries the mask marker.
func IsEncoded(s string) bool {
	return strings.HasPrefix(s, Marker)
}

// Encode masks plaintext. The empty string encodes to itself.
func (c *Codec) Encode(plaintext string) string {
	if plaintext == "" {
		return ""
	}
	return Marker + base64.StdEncoding.EncodeToString(c.xor([]byte(plaintext)))
}

// Decode reverses Encode. Values without the marker are returned unchanged,
// as are values that fail to unmask; Decode never fails.
func (c *Codec) Decode(text string) string {
	if text == "" {
		return ""
	}
	if !IsEncoded(text) {
		return text
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(text, Marker))
	if err != nil {
		return text
	}
	plain := c.xor(raw)
	if !utf8.Valid(plain) {
		return text
	}
	return string(plain)
}

func (c *Codec) xor(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ c.key[i%len(c.key)]
	}
	return out
}
