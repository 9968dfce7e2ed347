package gotdd

import "encoding/binary"

// keyBuilder assembles exact byte-string keys for the node table and the
// operation caches. Weights enter a key quantized on the EPS grid, so two
// keys match iff every component rounds to the same grid point. Callers
// prefix variable-length sections with their length.
type keyBuilder struct {
	buf []byte
	eps float64
}

func newKeyBuilder(eps float64, sizeHint int) *keyBuilder {
	return &keyBuilder{buf: make([]byte, 0, sizeHint), eps: eps}
}

func (k *keyBuilder) int(v int) *keyBuilder {
	k.buf = binary.AppendVarint(k.buf, int64(v))
	return k
}

func (k *keyBuilder) node(id NodeID) *keyBuilder {
	k.buf = binary.AppendUvarint(k.buf, uint64(id))
	return k
}

func (k *keyBuilder) weight(w Weight) *keyBuilder {
	for _, v := range w {
		k.buf = binary.AppendVarint(k.buf, quantize(real(v), k.eps))
		k.buf = binary.AppendVarint(k.buf, quantize(imag(v), k.eps))
	}
	return k
}

func (k *keyBuilder) string() string {
	return string(k.buf)
}
