package upload

import (
	"context"
	"fmt"
	"io"

	log "github.com/sjqzhang/seelog"

	"github.com/sjqzhang/go-resumable/internal/model"
)

type lengthReader interface {
	Len() int
}

// Append persists the bytes of r as the next part of the upload and moves
// the checkpoint forward by what actually reached storage.
//
// Cancelling ctx ends the read early; whatever was stored up to that point
// is still recorded. The checkpoint write itself ignores ctx. Reading past
// the declared length keeps the in-bounds bytes and returns ErrSizeExceeded.
func (s *Store) Append(ctx context.Context, id string, r io.Reader) (int64, error) {
	m, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}
	remaining := int64(-1)
	if m.LengthKnown() {
		remaining = m.Length() - m.WrittenBytes
		if lr, ok := r.(lengthReader); ok && int64(lr.Len()) > remaining {
			s.metrics.appends.WithLabelValues(resultOversize).Inc()
			return 0, fmt.Errorf("%w: %d bytes at offset %d, length %d",
				ErrSizeExceeded, lr.Len(), m.WrittenBytes, m.Length())
		}
	}

	src := NewCancellableReader(ctx, r)
	var body io.Reader = src
	if remaining >= 0 {
		body = io.LimitReader(src, remaining)
	}
	durable := context.WithoutCancel(ctx)
	name := model.PartName(id, m.WrittenParts)

	n, putErr := s.blobs.Put(durable, name, body, true)
	if putErr != nil {
		size, err := s.blobs.Size(durable, name)
		if err != nil {
			s.metrics.appends.WithLabelValues(resultError).Inc()
			log.Warnf("upload %s: part %s not stored: %v", id, name, putErr)
			return 0, putErr
		}
		n = size
	}

	oversized := false
	if putErr == nil && remaining >= 0 && n == remaining {
		var extra [1]byte
		if k, _ := io.ReadFull(src, extra[:]); k > 0 {
			oversized = true
		}
	}

	m.WrittenBytes += n
	m.WrittenParts++
	if err = s.save(durable, m); err != nil {
		s.metrics.appends.WithLabelValues(resultError).Inc()
		return n, fmt.Errorf("checkpoint %s: %w", id, err)
	}
	s.metrics.bytesWritten.Add(float64(n))

	switch {
	case putErr != nil:
		s.metrics.appends.WithLabelValues(resultError).Inc()
		return n, putErr
	case oversized:
		s.metrics.appends.WithLabelValues(resultOversize).Inc()
		return n, fmt.Errorf("%w: offset %d reached length %d with data left",
			ErrSizeExceeded, m.WrittenBytes, m.Length())
	case ctx.Err() != nil:
		s.metrics.appends.WithLabelValues(resultCancelled).Inc()
		log.Infof("upload %s: cancelled after %d bytes, offset %d", id, n, m.WrittenBytes)
	default:
		s.metrics.appends.WithLabelValues(resultOK).Inc()
	}
	return n, nil
}
