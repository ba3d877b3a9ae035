// Package reference produces transaction references: an opaque, globally
// unique key with a cryptographically random suffix, so references are not
// guessable and collisions are negligible even across instances.
package reference

import (
	"crypto/rand"
	"fmt"
	"time"
)

const (
	prefix         = "TX"
	suffixLen      = 10
	suffixAlphabet = "ABCDEFGHJKMNPQRSTVWXYZ0123456789"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// Generate returns a reference of the form TX-20060102150405-XXXXXXXXXX.
// The timestamp segment is informational only; uniqueness rests on the
// random suffix plus the caller's existence check against stored transfers.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, suffixLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("Generate: %w", err)
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", prefix, time.Now().UTC().Format("20060102150405"), buf), nil
}
