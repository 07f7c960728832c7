package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	log "github.com/sjqzhang/seelog"
)

// Folder keeps every blob as one file in a directory.
type Folder struct {
	dir string
}

func NewFolder(dir string) (*Folder, error) {
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, err
	}
	return &Folder{dir: dir}, nil
}

func (f *Folder) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *Folder) Put(ctx context.Context, name string, r io.Reader, overwrite bool) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	flag := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if !overwrite {
		flag = os.O_CREATE | os.O_WRONLY | os.O_EXCL
	}
	fp, err := os.OpenFile(f.path(name), flag, 0664)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return 0, ErrAlreadyExists
		}
		return 0, err
	}
	n, err := io.Copy(fp, r)
	if serr := fp.Sync(); serr != nil && err == nil {
		err = serr
	}
	if cerr := fp.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		log.Warnf("blob %s: partial write of %d bytes: %v", name, n, err)
	}
	return n, err
}

func (f *Folder) Size(ctx context.Context, name string) (int64, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	fi, err := os.Stat(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return fi.Size(), nil
}

func (f *Folder) Get(ctx context.Context, name string, w io.Writer, rng Range) error {
	if err := checkName(name); err != nil {
		return err
	}
	fp, err := os.Open(f.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	defer fp.Close()
	fi, err := fp.Stat()
	if err != nil {
		return err
	}
	offset, n, err := window(rng, fi.Size())
	if err != nil {
		return err
	}
	_, err = io.Copy(w, io.NewSectionReader(fp, offset, n))
	return err
}

func (f *Folder) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := os.Remove(f.path(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
