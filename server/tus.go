package server

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	slog "log"
	"os"
	"strings"
	"time"

	"github.com/astaxie/beego/httplib"
	log "github.com/sjqzhang/seelog"
	"github.com/sjqzhang/tusd"
	"github.com/sjqzhang/tusd/memorylocker"
	"github.com/sjqzhang/tusd/prometheuscollector"

	"github.com/sjqzhang/go-resumable/internal/model"
	"github.com/sjqzhang/go-resumable/internal/tusstore"
	"github.com/sjqzhang/go-resumable/internal/upload"
)

var noExpiry time.Time

// tusLogger opens log/tusd.log for the tus handler and truncates it once it
// grows past CONST_TUS_LOG_MAX_SIZE, keeping one copy.
func (c *Server) tusLogger() *slog.Logger {
	var (
		err     error
		fileLog *os.File
	)
	fileName := LOG_DIR + "/tusd.log"
	if fileLog, err = os.OpenFile(fileName, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0666); err != nil {
		log.Error(err)
		return slog.New(io.Discard, "[tusd] ", slog.LstdFlags)
	}
	go func() {
		defer fileLog.Close()
		for {
			select {
			case <-c.quit:
				return
			case <-time.After(time.Second * 30):
			}
			if fi, err := fileLog.Stat(); err != nil {
				log.Error(err)
			} else if fi.Size() > CONST_TUS_LOG_MAX_SIZE {
				c.util.CopyFile(fileName, fileName+".2")
				fileLog.Truncate(0)
			}
		}
	}()
	return slog.New(fileLog, "[tusd] ", slog.LstdFlags)
}

func (c *Server) initTus(cfg *GlobalConfig) error {
	var (
		err     error
		maxSize int64
	)
	if maxSize, err = cfg.MaxSizeBytes(); err != nil {
		return err
	}
	composer := tusd.NewStoreComposer()
	tusstore.New(c.store, c.finishUpload).UseIn(composer)
	memorylocker.New().UseIn(composer)
	composer.UseCore(hookDataStore{
		DataStore: composer.Core,
		server:    c,
	})
	handler, err := tusd.NewHandler(tusd.Config{
		Logger:                  c.tusLogger(),
		BasePath:                cfg.BasePath,
		StoreComposer:           composer,
		MaxSize:                 maxSize,
		NotifyCompleteUploads:   true,
		RespectForwardedHeaders: true,
	})
	if err != nil {
		log.Error(err)
		return err
	}
	c.handler = handler
	if cfg.EnableMetrics {
		c.registry.MustRegister(prometheuscollector.New(handler.Metrics))
	}
	go c.notify(handler)
	return nil
}

// finishUpload copies the assembled upload into the asset store and records
// it. It runs before the last PATCH is answered.
func (c *Server) finishUpload(ctx context.Context, id string) error {
	var (
		err    error
		f      *upload.File
		asset  *model.Asset
		reader io.Reader
		empty  bool
	)
	h, err := upload.NewHash("sha1")
	if err != nil {
		return err
	}
	f, err = c.store.Assemble(ctx, id)
	switch {
	case errors.Is(err, upload.ErrNotFound):
		// nothing was written, the upload may still exist with length 0
		m, err := c.store.Info(ctx, id)
		if err != nil {
			return err
		}
		values := m.Values()
		asset = &model.Asset{ID: id, Name: model.FileName(values), MimeType: model.MimeType(values), MetaData: values}
		reader = strings.NewReader("")
		empty = true
	case err != nil:
		log.Error(err)
		return err
	default:
		defer f.Close()
		asset = &model.Asset{ID: id, Name: f.Name, MimeType: f.MimeType, MetaData: f.Metadata}
		reader = f.Reader()
	}
	if asset.Size, err = c.assets.Put(ctx, id, io.TeeReader(reader, h), true); err != nil {
		log.Error(err)
		return err
	}
	asset.Sha1 = hex.EncodeToString(h.Sum(nil))
	asset.TimeStamp = time.Now().Unix()
	if err = c.SaveAsset(ctx, asset); err != nil {
		log.Error(err)
		return err
	}
	if empty && !c.store.KeepsParts() {
		if err = c.store.Delete(ctx, id); err != nil {
			log.Warn(fmt.Sprintf("upload %s: reclaim empty upload: %v", id, err))
		}
	}
	log.Info(c.util.JsonEncodePretty(asset))
	return nil
}

func (c *Server) notify(handler *tusd.Handler) {
	for {
		select {
		case <-c.quit:
			return
		case info := <-handler.CompleteUploads:
			log.Info("CompleteUploads", info.ID)
			if callback_url, ok := info.MetaData["callback_url"]; ok && callback_url != "" {
				go c.callBack(callback_url, info.ID)
			}
		}
	}
}

func (c *Server) callBack(callback_url string, id string) {
	asset, err := c.GetAsset(context.Background(), id)
	if err != nil {
		log.Error(err)
		return
	}
	req := httplib.Post(callback_url)
	req.SetTimeout(time.Second*10, time.Second*10)
	req.Param("info", c.util.JsonEncodePretty(asset))
	req.Param("id", id)
	if _, err := req.String(); err != nil {
		log.Error(err)
	}
}
