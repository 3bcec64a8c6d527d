// Package obfuscate maps logical transcript keys to storage names and
// plaintext transcripts to stored content.
package obfuscate

import (
	"crypto/md5"
	"encoding/hex"
)

// Obfuscator transforms what reaches persistent storage.
//
// NameFor must return a valid store key (lowercase letters, digits, '-' or '_',
// at most 120 characters) and should not reveal the logical key. It only needs
// to be deterministic within one process. ContentFor may encrypt or redact the
// transcript before it is written.
type Obfuscator interface {
	NameFor(key string) string
	ContentFor(text string) string
}

// Hashed is the default Obfuscator. Names are the hex MD5 digest of the key,
// content is stored as is.
type Hashed struct{}

func (Hashed) NameFor(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

func (Hashed) ContentFor(text string) string {
	return text
}
