// Package audit computes content hashes over conversations so writes can
// be verified later without retaining raw text.
package audit

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/flowkan/process-ai/internal/process"
)

type Hasher struct {
	enabled bool
}

func NewHasher(enabled bool) *Hasher {
	return &Hasher{enabled: enabled}
}

// Hash returns a hex sha-256 over the role/content pairs, or "" when
// auditing is disabled.
func (h *Hasher) Hash(msgs []process.Message) string {
	if h == nil || !h.enabled {
		return ""
	}
	sum := sha256.New()
	for _, m := range msgs {
		sum.Write([]byte(m.Role))
		sum.Write([]byte{0x1f})
		sum.Write([]byte(m.Content))
		sum.Write([]byte{0x1e})
	}
	return hex.EncodeToString(sum.Sum(nil))
}
