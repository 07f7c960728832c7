package upload

import (
	"context"
	"io"
)

// CancellableReader reports io.EOF once its context is done instead of
// failing, so a cancelled request reads like a client that stopped early.
type CancellableReader struct {
	ctx context.Context
	r   io.Reader
}

func NewCancellableReader(ctx context.Context, r io.Reader) *CancellableReader {
	return &CancellableReader{ctx: ctx, r: r}
}

func (c *CancellableReader) Read(p []byte) (int, error) {
	if c.ctx.Err() != nil {
		return 0, io.EOF
	}
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF && c.ctx.Err() != nil {
		// a body read aborted by the cancellation itself
		return n, io.EOF
	}
	return n, err
}
