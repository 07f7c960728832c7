package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (c *Server) initRouter(cfg *GlobalConfig) {
	c.mux.Handle(cfg.BasePath, http.StripPrefix(cfg.BasePath, c.handler))
	c.mux.HandleFunc("/download/", c.Download)
	c.mux.HandleFunc("/checksum/", c.Checksum)
	c.mux.HandleFunc("/status", c.Status)
	c.mux.HandleFunc("/reload", c.Reload)
	c.mux.HandleFunc("/gen_google_secret", c.GenGoogleSecret)
	c.mux.HandleFunc("/gen_google_code", c.GenGoogleCode)
	if cfg.EnableMetrics {
		c.mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	}
}
