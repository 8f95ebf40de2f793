package util

import (
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Digest accumulates an xxhash over several named inputs so that a run can
// record exactly which source texts it saw.
type Digest struct {
	h *xxhash.Digest
}

func NewDigest() *Digest {
	return &Digest{h: xxhash.New()}
}

// Add mixes a name and its content into the digest. Names keep two files with
// swapped contents from hashing the same.
func (d *Digest) Add(name string, r io.Reader) error {
	_, _ = d.h.WriteString(name)
	_, _ = d.h.Write([]byte{0})
	if _, err := io.Copy(d.h, r); err != nil {
		return fmt.Errorf("digest %s: %w", name, err)
	}
	_, _ = d.h.Write([]byte{0})
	return nil
}

func (d *Digest) Hex() string {
	return fmt.Sprintf("%016x", d.h.Sum64())
}
