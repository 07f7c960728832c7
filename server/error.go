package server

import (
	"errors"
	"net/http"

	"github.com/sjqzhang/go-resumable/internal/blob"
	"github.com/sjqzhang/go-resumable/internal/kv"
	"github.com/sjqzhang/go-resumable/internal/upload"
)

type httpError struct {
	error
	statusCode int
}

func (err httpError) StatusCode() int {
	return err.statusCode
}

func (err httpError) Body() []byte {
	return []byte(err.Error())
}

// statusOf picks the response status for an engine error.
func statusOf(err error) int {
	var herr httpError
	switch {
	case errors.As(err, &herr):
		return herr.statusCode
	case errors.Is(err, upload.ErrNotFound), errors.Is(err, kv.ErrNotFound), errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, upload.ErrSizeExceeded):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrUnsupportedAlgorithm), errors.Is(err, upload.ErrLengthDeclared),
		errors.Is(err, upload.ErrInvalidLength):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
