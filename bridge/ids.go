// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// idLength is the number of hash bytes in a correlation id (hex
// encoded on the wire).
const idLength = 16

// idGenerator produces correlation ids: a keyed BLAKE3 hash of a
// monotonic counter. Ids never repeat within the generator's lifetime
// and a peer cannot predict the next one from those it has seen.
type idGenerator struct {
	key     [32]byte
	counter atomic.Uint64
}

func newIDGenerator() *idGenerator {
	g := &idGenerator{}
	if _, err := rand.Read(g.key[:]); err != nil {
		panic(fmt.Sprintf("bridge: reading random id key: %v", err))
	}
	return g
}

func (g *idGenerator) next() string {
	hasher, err := blake3.NewKeyed(g.key[:])
	if err != nil {
		// Only possible for a key of the wrong length.
		panic(fmt.Sprintf("bridge: keyed hasher: %v", err))
	}
	var counter [8]byte
	binary.BigEndian.PutUint64(counter[:], g.counter.Add(1))
	hasher.Write(counter[:])
	return hex.EncodeToString(hasher.Sum(nil)[:idLength])
}

// newConnectionID names an attached connection in logs and metrics.
func newConnectionID() string {
	return uuid.NewString()
}
