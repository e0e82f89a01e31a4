package rpc

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// IDGenerator produces process-unique message ids of the form
// "<prefix>-<nonce>-<counter>". The nonce is derived from a random UUID and
// the start time, so two generators with the same prefix never collide.
type IDGenerator struct {
	prefix string
	nonce  string
	n      atomic.Uint64
}

// NewIDGenerator creates a generator for the given prefix ("peer", "relay").
func NewIDGenerator(prefix string) *IDGenerator {
	h := xxhash.New()
	_, _ = h.WriteString(uuid.NewString())
	_, _ = h.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	return &IDGenerator{
		prefix: prefix,
		nonce:  fmt.Sprintf("%08x", h.Sum64()&0xffffffff),
	}
}

// Next returns the next id. Safe for concurrent use.
func (g *IDGenerator) Next() string {
	return fmt.Sprintf("%s-%s-%d", g.prefix, g.nonce, g.n.Add(1))
}
