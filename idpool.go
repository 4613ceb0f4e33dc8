// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"math/rand/v2"
)

const (
	idAlphabet   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"
	idLength     = 11
	idBufferSize = 50
)

// IdPool hands out unique random identifiers for form nodes, refilling its buffer
// whenever it runs dry
type IdPool struct {
	size   int
	buffer []string
	used   map[string]struct{}
}

// NewIdPool creates a pool that generates size ids per refill, size below 1 uses the default of 50
func NewIdPool(size int) *IdPool {
	if size < 1 {
		size = idBufferSize
	}

	return &IdPool{size: size, used: map[string]struct{}{}}
}

func randomWord(l int) string {
	b := make([]byte, l)
	for i := range b {
		b[i] = idAlphabet[rand.IntN(len(idAlphabet))]
	}

	return string(b)
}

func (p *IdPool) refill() {
	p.buffer = make([]string, 0, p.size)
	for range p.size {
		p.buffer = append(p.buffer, randomWord(idLength))
	}
}

// Reserve marks an id supplied by a schema so the pool never hands it out
func (p *IdPool) Reserve(id string) {
	p.used[id] = struct{}{}
}

// Next returns an id that was never returned or reserved before
func (p *IdPool) Next() string {
	for {
		if len(p.buffer) == 0 {
			p.refill()
		}

		id := p.buffer[len(p.buffer)-1]
		p.buffer = p.buffer[:len(p.buffer)-1]

		if _, ok := p.used[id]; ok {
			continue
		}

		p.used[id] = struct{}{}

		return id
	}
}
