package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/roach88/spaghetti/internal/data"
)

// Domain prefixes for content digests. The version suffix allows the
// encoding to change without colliding with old digests.
const (
	DomainSpec = "spaghetti/spec/v1"
	DomainData = "spaghetti/data/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SpecHash computes the digest of a graph definition. Two definitions with
// the same processors, slots and links in the same order hash equal, however
// they were written.
func SpecHash(g *GraphSpec) (string, error) {
	canonical, err := MarshalCanonical(g.ToIR())
	if err != nil {
		return "", fmt.Errorf("SpecHash: %w", err)
	}
	return hashWithDomain(DomainSpec, canonical), nil
}

// DataDigest computes the digest of a data value. Float payloads hash
// through their bit patterns, so the digest changes whenever any bit does.
func DataDigest(d *data.Data) (string, error) {
	obj, err := DataToIR(d)
	if err != nil {
		return "", fmt.Errorf("DataDigest: %w", err)
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("DataDigest: %w", err)
	}
	return hashWithDomain(DomainData, canonical), nil
}

// MustSpecHash is like SpecHash but panics on error.
// Use only in tests or when the definition is known to be valid.
func MustSpecHash(g *GraphSpec) string {
	h, err := SpecHash(g)
	if err != nil {
		panic(err)
	}
	return h
}
