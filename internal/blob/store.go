package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrNotFound      = errors.New("blob not found")
	ErrAlreadyExists = errors.New("blob already exists")
	ErrInvalidName   = errors.New("invalid blob name")
)

// Range selects a window of a blob. A non-positive Length reads to the end.
type Range struct {
	Offset int64
	Length int64
}

func (r Range) IsZero() bool {
	return r.Offset == 0 && r.Length <= 0
}

// Store is the flat named blob storage the upload engine writes parts to.
//
// Put returns the number of bytes persisted even when it also returns an
// error. Delete of a missing blob is not an error.
type Store interface {
	Put(ctx context.Context, name string, r io.Reader, overwrite bool) (int64, error)
	Size(ctx context.Context, name string) (int64, error)
	Get(ctx context.Context, name string, w io.Writer, rng Range) error
	Delete(ctx context.Context, name string) error
}

func checkName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// window clamps rng to a blob of the given size and returns the start and
// the number of bytes to read.
func window(rng Range, size int64) (int64, int64, error) {
	if rng.Offset < 0 || rng.Offset > size {
		return 0, 0, fmt.Errorf("range offset %d out of bounds for size %d", rng.Offset, size)
	}
	n := size - rng.Offset
	if rng.Length > 0 && rng.Length < n {
		n = rng.Length
	}
	return rng.Offset, n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
