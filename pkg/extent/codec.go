package extent

import (
	"encoding/binary"
	"fmt"

	"github.com/arjunsk/stratakv/pkg/layer"
)

// BytesCodec persists extent keys as two little-endian uint64s and byte
// values verbatim. The key encoding has not changed since version 1.0, so
// decode accepts any version at or below latest.
type BytesCodec struct{}

var _ layer.Codec[Key, []byte] = BytesCodec{}

func (BytesCodec) EncodeKey(k Key) ([]byte, error) {
	b := make([]byte, 16)
	binary.LittleEndian.PutUint64(b[0:8], k.Start)
	binary.LittleEndian.PutUint64(b[8:16], k.End)
	return b, nil
}

func (BytesCodec) DecodeKey(version layer.Version, b []byte) (Key, error) {
	if version.Cmp(layer.LatestVersion) > 0 {
		return Key{}, fmt.Errorf("extent key version %s is newer than %s", version, layer.LatestVersion)
	}
	if len(b) != 16 {
		return Key{}, fmt.Errorf("extent key is %d bytes, want 16: %w", len(b), layer.ErrCorrupt)
	}
	return Key{
		Start: binary.LittleEndian.Uint64(b[0:8]),
		End:   binary.LittleEndian.Uint64(b[8:16]),
	}, nil
}

func (BytesCodec) EncodeValue(v []byte) ([]byte, error) {
	return v, nil
}

func (BytesCodec) DecodeValue(version layer.Version, b []byte) ([]byte, error) {
	if version.Cmp(layer.LatestVersion) > 0 {
		return nil, fmt.Errorf("extent value version %s is newer than %s", version, layer.LatestVersion)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// HashKey returns the stable byte form of k for bloom probing.
func HashKey(k Key) []byte {
	b, _ := BytesCodec{}.EncodeKey(k)
	return b
}
