package cache

import (
	"encoding/binary"
	"math"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint derives a cache key from a structural identity string (the
// deterministic name of a derived node, which already encodes integrand,
// integration variables, normalization set and range) plus the parameter
// values the result depends on.
//
// Parameter order does not matter: names are sorted before hashing, so two
// call sites that enumerate parameters differently produce the same key.
func Fingerprint(identity string, params map[string]float64) Key {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(identity))
	h.Write([]byte{0})

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf [8]byte
	for _, name := range names {
		h.Write([]byte(name))
		h.Write([]byte{'='})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(params[name]))
		h.Write(buf[:])
		h.Write([]byte{0})
	}

	var key Key
	copy(key[:], h.Sum(nil))
	return key
}
