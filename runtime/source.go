package cbor

import (
	"io"

	"github.com/philhofer/fwd"
)

// source is the byte-source abstraction consumed by the decoder engine.
// Reads that cannot be satisfied in full are surfaced as DecodeEOFError
// by the decoder.
type source interface {
	readByte() (byte, error)
	readFull(p []byte) (int, error)
}

// newSource wraps r according to the readahead configuration: a positive
// readSize (or zero, meaning the default) pulls slabs through a fwd.Reader
// of that size; a negative readSize disables readahead entirely for
// byte-at-a-time sources.
func newSource(r io.Reader, readSize int) source {
	if readSize < 0 {
		return &directSource{r: r}
	}
	if readSize == 0 {
		readSize = DefaultReadSize
	}
	return &bufferedSource{r: fwd.NewReaderSize(r, readSize)}
}

type bufferedSource struct {
	r *fwd.Reader
}

func (s *bufferedSource) readByte() (byte, error)      { return s.r.ReadByte() }
func (s *bufferedSource) readFull(p []byte) (int, error) { return s.r.ReadFull(p) }

type directSource struct {
	r   io.Reader
	one [1]byte
}

func (s *directSource) readByte() (byte, error) {
	if _, err := io.ReadFull(s.r, s.one[:]); err != nil {
		return 0, err
	}
	return s.one[0], nil
}

func (s *directSource) readFull(p []byte) (int, error) { return io.ReadFull(s.r, p) }
