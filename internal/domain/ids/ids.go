// Package ids generates identifiers for fingerprints and comparisons.
//
// Uniqueness is the only requirement; nothing here needs to be unpredictable.
package ids

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// Generator produces a new unique id for content created at a given time.
type Generator interface {
	NewID(content string, at time.Time) string
}

// HashGenerator derives ids from an xxhash of the content, the timestamp and a
// process-local sequence number.
type HashGenerator struct {
	seq atomic.Uint64
}

// NewHashGenerator returns a content-hash generator.
func NewHashGenerator() *HashGenerator {
	return &HashGenerator{}
}

// NewID implements Generator.
func (g *HashGenerator) NewID(content string, at time.Time) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(at.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:], g.seq.Add(1))

	d := xxhash.New()
	_, _ = d.WriteString(content)
	_, _ = d.Write(buf[:])
	return fmt.Sprintf("%x%04x", d.Sum64(), uint16(at.UnixNano()))
}

// UUIDGenerator ignores its inputs and returns random v4 UUIDs.
type UUIDGenerator struct{}

// NewID implements Generator.
func (UUIDGenerator) NewID(string, time.Time) string {
	return uuid.NewString()
}

// ForScheme returns the generator configured by name: "hash" (default) or "uuid".
func ForScheme(scheme string) (Generator, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", "hash":
		return NewHashGenerator(), nil
	case "uuid":
		return UUIDGenerator{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}
