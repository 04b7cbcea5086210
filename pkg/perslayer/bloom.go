package perslayer

import (
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/twmb/murmur3"
)

// bloomFilter answers "definitely absent" for exact-key probes against a
// persisted layer. Range seeks cannot use it; only MaybeContains consults
// it.
type bloomFilter struct {
	bits   *bitset.BitSet
	hashes uint32
}

// newBloomFilter sizes for n keys at false-positive rate p using the usual
// optimum m = -n ln p / (ln 2)^2, k = (m/n) ln 2.
func newBloomFilter(n uint, p float64) *bloomFilter {
	if n == 0 {
		n = 1
	}
	m := uint(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	k := uint32(math.Ceil(float64(m) / float64(n) * math.Ln2))
	if k == 0 {
		k = 1
	}
	return &bloomFilter{bits: bitset.New(m), hashes: k}
}

func (f *bloomFilter) add(key []byte) {
	h1, h2 := murmur3.Sum128(key)
	for i := uint32(0); i < f.hashes; i++ {
		f.bits.Set(uint((h1 + uint64(i)*h2) % uint64(f.bits.Len())))
	}
}

func (f *bloomFilter) maybeContains(key []byte) bool {
	h1, h2 := murmur3.Sum128(key)
	for i := uint32(0); i < f.hashes; i++ {
		if !f.bits.Test(uint((h1 + uint64(i)*h2) % uint64(f.bits.Len()))) {
			return false
		}
	}
	return true
}

func (f *bloomFilter) marshal() ([]byte, error) {
	return f.bits.MarshalBinary()
}

func unmarshalBloomFilter(b []byte, hashes uint32) (*bloomFilter, error) {
	bits := bitset.New(0)
	if err := bits.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return &bloomFilter{bits: bits, hashes: hashes}, nil
}
