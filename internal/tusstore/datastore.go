package tusstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	log "github.com/sjqzhang/seelog"
	"github.com/sjqzhang/tusd"

	"github.com/sjqzhang/go-resumable/internal/model"
	"github.com/sjqzhang/go-resumable/internal/upload"
)

// FinishFunc runs once an upload received all declared bytes, before the
// final PATCH is answered.
type FinishFunc func(ctx context.Context, id string) error

// DataStore exposes an upload.Store through the tusd storage interfaces.
type DataStore struct {
	store  *upload.Store
	finish FinishFunc
}

func New(store *upload.Store, finish FinishFunc) *DataStore {
	return &DataStore{store: store, finish: finish}
}

func (d *DataStore) UseIn(composer *tusd.StoreComposer) {
	composer.UseCore(d)
	composer.UseTerminater(d)
	composer.UseFinisher(d)
	composer.UseLengthDeferrer(d)
	composer.UseGetReader(d)
}

func (d *DataStore) NewUpload(info tusd.FileInfo) (string, error) {
	var length *int64
	if !info.SizeIsDeferred {
		size := info.Size
		length = &size
	}
	id, err := d.store.Create(context.Background(), length, model.EncodeValues(info.MetaData))
	return id, toTusError(err)
}

func (d *DataStore) WriteChunk(id string, offset int64, src io.Reader) (int64, error) {
	ctx := context.Background()
	current, err := d.store.GetOffset(ctx, id)
	if err != nil {
		return 0, toTusError(err)
	}
	if current != offset {
		return 0, tusd.ErrMismatchOffset
	}
	n, err := d.store.Append(ctx, id, src)
	if err != nil {
		log.Warnf("tus write %s at %d: %d bytes kept: %v", id, offset, n, err)
	}
	return n, toTusError(err)
}

func (d *DataStore) GetInfo(id string) (tusd.FileInfo, error) {
	m, err := d.store.Info(context.Background(), id)
	if err != nil {
		return tusd.FileInfo{}, toTusError(err)
	}
	return tusd.FileInfo{
		ID:             m.ID,
		Size:           m.Length(),
		SizeIsDeferred: !m.LengthKnown(),
		Offset:         m.WrittenBytes,
		MetaData:       m.Values(),
	}, nil
}

func (d *DataStore) Terminate(id string) error {
	return toTusError(d.store.Delete(context.Background(), id))
}

func (d *DataStore) DeclareLength(id string, length int64) error {
	return toTusError(d.store.SetDeclaredLength(context.Background(), id, length))
}

func (d *DataStore) FinishUpload(id string) error {
	if d.finish == nil {
		return nil
	}
	if err := d.finish(context.Background(), id); err != nil {
		log.Error(fmt.Sprintf("finish upload %s: %v", id, err))
		return toTusError(err)
	}
	return nil
}

// GetReader serves the assembled content without consuming the upload; the
// handle is released on Close.
func (d *DataStore) GetReader(id string) (io.Reader, error) {
	f, err := d.store.Open(context.Background(), id)
	if err != nil {
		return nil, toTusError(err)
	}
	return &fileReader{ReadSeeker: f.Reader(), file: f}, nil
}

type fileReader struct {
	io.ReadSeeker
	file *upload.File
}

func (r *fileReader) Close() error {
	return r.file.Close()
}

func toTusError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, upload.ErrNotFound):
		return tusd.ErrNotFound
	case errors.Is(err, upload.ErrSizeExceeded):
		return tusd.ErrSizeExceeded
	case errors.Is(err, upload.ErrLengthDeclared), errors.Is(err, upload.ErrInvalidLength):
		return tusd.ErrInvalidUploadLength
	}
	return err
}
