package buildcache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Digest accumulates the inputs of a pipe run into a single hash. Every
// field is length-prefixed so that adjacent fields cannot run together.
type Digest struct {
	h   *xxhash.Digest
	err error
}

// NewDigest returns an empty digest.
func NewDigest() *Digest {
	return &Digest{h: xxhash.New()}
}

// Bytes adds a field.
func (d *Digest) Bytes(b []byte) *Digest {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(b)))
	_, _ = d.h.Write(n[:])
	_, _ = d.h.Write(b)
	return d
}

// String adds a field.
func (d *Digest) String(s string) *Digest {
	return d.Bytes([]byte(s))
}

// Value adds the JSON encoding of v, following pointers. It is meant for
// decoded step arguments. A value that cannot be encoded poisons the
// digest; see Err.
func (d *Digest) Value(v any) *Digest {
	b, err := json.Marshal(v)
	if err != nil {
		if d.err == nil {
			d.err = fmt.Errorf("cannot digest %T: %w", v, err)
		}
		return d
	}
	return d.Bytes(b)
}

// Err returns the first error met while adding values. A digest with an
// error must not be stored or compared.
func (d *Digest) Err() error {
	return d.err
}

// Sum returns the digest as a hex string.
func (d *Digest) Sum() string {
	return strconv.FormatUint(d.h.Sum64(), 16)
}
