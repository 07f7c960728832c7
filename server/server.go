package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/astaxie/beego/httplib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/radovskyb/watcher"
	"github.com/sjqzhang/goutil"
	log "github.com/sjqzhang/seelog"
	"github.com/sjqzhang/tusd"

	"github.com/sjqzhang/go-resumable/internal/blob"
	"github.com/sjqzhang/go-resumable/internal/kv"
	"github.com/sjqzhang/go-resumable/internal/upload"
)

type Server struct {
	util     *goutil.Common
	store    *upload.Store
	parts    blob.Store
	assets   blob.Store
	table    kv.Table
	registry *prometheus.Registry
	handler  *tusd.Handler
	mux      *http.ServeMux
	// closed by Close, stops the background loops
	quit chan struct{}
}

// InitServer prepares directories, loggers and config, then builds the
// package server. confPath may be empty for conf/cfg.json.
func InitServer(confPath string) {
	DOCKER_DIR = os.Getenv("GO_RESUMABLE_DIR")
	if DOCKER_DIR != "" {
		if !strings.HasSuffix(DOCKER_DIR, "/") {
			DOCKER_DIR = DOCKER_DIR + "/"
		}
	}
	CONF_DIR = DOCKER_DIR + CONF_DIR_NAME
	DATA_DIR = DOCKER_DIR + DATA_DIR_NAME
	LOG_DIR = DOCKER_DIR + LOG_DIR_NAME
	CONST_CONF_FILE_NAME = CONF_DIR + "/cfg.json"
	if confPath != "" {
		CONST_CONF_FILE_NAME = confPath
	}
	FOLDERS = []string{DATA_DIR, CONF_DIR, LOG_DIR}
	logAccessConfigStr = strings.Replace(logAccessConfigStr, "{DOCKER_DIR}", DOCKER_DIR, -1)
	logConfigStr = strings.Replace(logConfigStr, "{DOCKER_DIR}", DOCKER_DIR, -1)
	for _, folder := range FOLDERS {
		os.MkdirAll(folder, 0775)
	}
	util := &goutil.Common{}
	if !util.FileExists(CONST_CONF_FILE_NAME) {
		util.WriteFile(CONST_CONF_FILE_NAME, strings.TrimSpace(cfgJson))
	}
	if logger, err := log.LoggerFromConfigAsBytes([]byte(logConfigStr)); err != nil {
		panic(err)
	} else {
		log.ReplaceLogger(logger)
	}
	if _logacc, err := log.LoggerFromConfigAsBytes([]byte(logAccessConfigStr)); err == nil {
		logacc = _logacc
		log.Info("succes init log access")
	} else {
		log.Error(err.Error())
	}
	ParseConfig(CONST_CONF_FILE_NAME)
	s, err := NewServer(Config())
	if err != nil {
		fmt.Println(err)
		log.Error(err)
		panic(err)
	}
	server = s
}

func setHttpDefaults() {
	defaultTransport := &http.Transport{
		DisableKeepAlives:   true,
		Dial:                httplib.TimeoutDialer(time.Second*15, time.Second*300),
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
	}
	settins := httplib.BeegoHTTPSettings{
		UserAgent:        "Go-Resumable",
		ConnectTimeout:   15 * time.Second,
		ReadWriteTimeout: 15 * time.Second,
		Gzip:             true,
		DumpBody:         true,
		Transport:        defaultTransport,
	}
	httplib.SetDefaultSetting(settins)
}

// NewServer opens the stores named by cfg and mounts every route on a fresh mux.
func NewServer(cfg *GlobalConfig) (*Server, error) {
	var err error
	setHttpDefaults()
	s := &Server{
		util:     &goutil.Common{},
		registry: prometheus.NewRegistry(),
		mux:      http.NewServeMux(),
		quit:     make(chan struct{}),
	}
	if s.parts, s.assets, err = openBlobs(cfg); err != nil {
		return nil, err
	}
	if s.table, err = openTable(cfg); err != nil {
		return nil, err
	}
	if cfg.TempDir != "" {
		os.MkdirAll(cfg.TempDir, 0775)
	}
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.store = upload.NewStore(s.parts, s.table, upload.Options{
		TempDir:             cfg.TempDir,
		Expiration:          time.Duration(cfg.Expiration) * time.Second,
		KeepPartsOnAssemble: cfg.KeepPartsOnAssemble,
		Registerer:          s.registry,
	})
	if err = s.initTus(cfg); err != nil {
		s.table.Close()
		return nil, err
	}
	s.initRouter(cfg)
	return s, nil
}

func openBlobs(cfg *GlobalConfig) (blob.Store, blob.Store, error) {
	switch cfg.BlobType {
	case "memory":
		return blob.NewMemory(), blob.NewMemory(), nil
	case "s3":
		partCfg, assetCfg := cfg.S3, cfg.S3
		partCfg.Prefix = cfg.S3.Prefix + "parts/"
		assetCfg.Prefix = cfg.S3.Prefix + "assets/"
		parts, err := blob.NewS3(context.Background(), partCfg)
		if err != nil {
			return nil, nil, err
		}
		assets, err := blob.NewS3(context.Background(), assetCfg)
		if err != nil {
			return nil, nil, err
		}
		return parts, assets, nil
	case "folder":
		parts, err := blob.NewFolder(cfg.BlobDir)
		if err != nil {
			return nil, nil, err
		}
		assets, err := blob.NewFolder(cfg.AssetDir)
		if err != nil {
			return nil, nil, err
		}
		return parts, assets, nil
	}
	return nil, nil, fmt.Errorf("unknown blob_type %q", cfg.BlobType)
}

func openTable(cfg *GlobalConfig) (kv.Table, error) {
	switch cfg.MetadataType {
	case "memory":
		return kv.NewMemory(), nil
	case "sqlite":
		return kv.OpenSQLite(cfg.MetadataPath)
	case "leveldb":
		table, err := kv.OpenLevelDB(cfg.MetadataPath)
		if err != nil {
			fmt.Println(fmt.Sprintf("open db file %s fail,maybe has opening", cfg.MetadataPath))
			return nil, err
		}
		return table, nil
	}
	return nil, fmt.Errorf("unknown metadata_type %q", cfg.MetadataType)
}

// Store exposes the upload engine, for the sweep command.
func (c *Server) Store() *upload.Store {
	return c.store
}

func (c *Server) Handler() http.Handler {
	return &HttpHandler{server: c}
}

func (c *Server) sweep() {
	for {
		select {
		case <-c.quit:
			return
		case <-time.After(time.Second * time.Duration(Config().SweepInterval)):
		}
		if n, err := c.store.SweepExpired(context.Background()); err != nil {
			log.Error(err)
		} else if n > 0 {
			log.Info(fmt.Sprintf("sweep removed %d uploads", n))
		}
	}
}

// watchConfig reloads the config file whenever it is written.
func (c *Server) watchConfig(path string) {
	w := watcher.New()
	w.SetMaxEvents(1)
	w.FilterOps(watcher.Write, watcher.Create)
	if err := w.Add(path); err != nil {
		log.Error(err)
		return
	}
	go func() {
		for {
			select {
			case event := <-w.Event:
				log.Info(fmt.Sprintf("config changed: %s", event.Path))
				if err := ReloadConfig(path); err != nil {
					log.Error(err)
				}
			case err := <-w.Error:
				log.Error(err)
			case <-w.Closed:
				return
			case <-c.quit:
				w.Close()
				return
			}
		}
	}()
	if err := w.Start(time.Second * 2); err != nil {
		log.Error(err)
	}
}

func (c *Server) Start() {
	go c.sweep()
	if FileName != "" {
		go c.watchConfig(FileName)
	}
	fmt.Println("Listen on " + Config().Addr)
	srv := &http.Server{
		Addr:        Config().Addr,
		Handler:     c.Handler(),
		ReadTimeout: time.Duration(Config().ReadTimeout) * time.Second,
		// a zero write timeout keeps long PATCH bodies alive
		WriteTimeout: time.Duration(Config().WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(Config().IdleTimeout) * time.Second,
	}
	err := srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(err)
		fmt.Println(err)
	}
}

func (c *Server) Close() error {
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
	return c.table.Close()
}

func Start() {
	server.Start()
}

func RegisterExit() {
	server.RegisterExit()
}

// Sweep runs one sweep over the configured stores and returns the count.
func Sweep(ctx context.Context) (int, error) {
	defer server.Close()
	return server.store.SweepExpired(ctx)
}
