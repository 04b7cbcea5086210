package layer

// Codec translates keys and values to and from their persisted form. The
// decode side receives the version the layer was written under, so layers
// persisted by older code stay readable next to current ones.
type Codec[K Key[K], V any] interface {
	EncodeKey(k K) ([]byte, error)
	DecodeKey(version Version, b []byte) (K, error)
	EncodeValue(v V) ([]byte, error)
	DecodeValue(version Version, b []byte) (V, error)
}
