// Marquee - Personalized Film Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package profile

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/tomtom215/marquee/internal/recommend"
)

// Fingerprint hashes the fields of a history that affect the built profile.
// Two histories with the same fingerprint build the same profile, so it is
// used as the profile cache key alongside the user id.
//
//nolint:gocritic // rangeValCopy: WatchRecord passed by value in range, acceptable for clarity
func Fingerprint(history []recommend.WatchRecord) uint64 {
	h := xxhash.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}

	put(uint64(len(history)))
	for _, r := range history {
		put(uint64(r.ItemID))
		put(uint64(r.WatchedAt.UnixNano()))
		put(uint64(r.RewatchCount))
		if r.Rating != nil {
			put(math.Float64bits(*r.Rating))
		} else {
			put(math.MaxUint64)
		}
		if r.Liked {
			put(1)
		} else {
			put(0)
		}
		if r.Metadata == nil {
			put(0)
			continue
		}
		put(uint64(len(r.Metadata.Genres)))
		for _, g := range r.Metadata.Genres {
			_, _ = h.WriteString(g)
			_, _ = h.Write([]byte{0})
		}
		put(uint64(len(r.Metadata.Keywords)))
		for _, k := range r.Metadata.Keywords {
			_, _ = h.WriteString(k)
			_, _ = h.Write([]byte{0})
		}
		put(uint64(r.Metadata.RuntimeMinutes))
	}
	return h.Sum64()
}
