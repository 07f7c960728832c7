package client

import (
	"io"
	"mime"
	"os"
	"path/filepath"
)

// UploadFile is the local source of an upload. Reader must be positioned at
// the start; the driver seeks it when resuming.
type UploadFile struct {
	Reader   io.ReadSeeker
	Size     int64
	FileName string
	MimeType string
}

// OpenFile opens a file on disk as an UploadFile. Close releases it.
func OpenFile(path string) (UploadFile, error) {
	fp, err := os.Open(path)
	if err != nil {
		return UploadFile{}, err
	}
	fi, err := fp.Stat()
	if err != nil {
		fp.Close()
		return UploadFile{}, err
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return UploadFile{
		Reader:   fp,
		Size:     fi.Size(),
		FileName: filepath.Base(path),
		MimeType: mimeType,
	}, nil
}

func (f UploadFile) Close() error {
	if c, ok := f.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
