// Package perslayer implements the persisted, immutable layer and the
// writer that produces one.
//
// Encoding (all integers little-endian):
//
//	header  := magic u64, major u32, minor u32
//	record  := keyLen u32, valLen u32, sequence u64, key, value
//	index   := count u32, count * offset i64
//	bloom   := hashes u32, length u32, bitset bytes   (length 0 = no bloom)
//	trailer := indexStart i64, magic u64
//
// Layout: header, records, index, bloom, trailer. The version in the header
// is the version the layer keeps reporting for its lifetime; current code
// writes layer.LatestVersion and reads anything at or below it.
package perslayer

const (
	magic uint64 = 0x5354524154414b56 // "STRATAKV"

	headerSize    = 16
	recordHdrSize = 16
	trailerSize   = 16
)
