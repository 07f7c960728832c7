package server

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	log "github.com/sjqzhang/seelog"
)

type HttpHandler struct {
	server *Server
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (h *HttpHandler) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	sw := &statusWriter{ResponseWriter: res, status: http.StatusOK}
	defer func(t time.Time) {
		if logacc == nil {
			return
		}
		logStr := fmt.Sprintf("[Access] %s | %s | %s | %s | %d |%s",
			time.Now().Format("2006/01/02 - 15:04:05"),
			time.Since(t).String(),
			h.server.util.GetClientIp(req),
			req.Method,
			sw.status,
			req.RequestURI,
		)
		logacc.Info(logStr)
	}(time.Now())
	defer func() {
		if err := recover(); err != nil {
			sw.status = http.StatusInternalServerError
			res.WriteHeader(http.StatusInternalServerError)
			buff := debug.Stack()
			log.Error(err)
			log.Error(string(buff))
		}
	}()
	if Config().EnableCrossOrigin {
		h.server.CrossOrigin(sw, req)
		if req.Method == http.MethodOptions && req.Header.Get("Access-Control-Request-Method") != "" &&
			!h.server.isTusPath(req.URL.Path) {
			sw.WriteHeader(http.StatusNoContent)
			return
		}
	}
	h.server.mux.ServeHTTP(sw, req)
}
