package server

import (
	"mime"
	"net/http"
	"strings"

	"github.com/sjqzhang/go-resumable/internal/model"
)

func (c *Server) CrossOrigin(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Origin") != "" {
		w.Header().Set("Access-Control-Allow-Origin", r.Header.Get("Origin"))
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	} else {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Range, Upload-Checksum, User-Agent, X-Requested-With, If-Modified-Since, Cache-Control, Origin")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, HEAD, PATCH, OPTIONS, DELETE")
	w.Header().Set("Access-Control-Expose-Headers", "Authorization, Content-Range, Content-Disposition")
}

func (c *Server) isTusPath(path string) bool {
	return strings.HasPrefix(path, Config().BasePath)
}

// SetDownloadHeader describes asset in the response headers. Inline
// responses drop the attachment disposition.
func (c *Server) SetDownloadHeader(w http.ResponseWriter, asset *model.Asset, isDownload bool) {
	mimeType := asset.MimeType
	if mimeType == "" {
		mimeType = model.DefaultMimeType
	}
	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Accept-Ranges", "bytes")
	if !isDownload {
		return
	}
	if asset.Name != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": asset.Name}))
	} else {
		w.Header().Set("Content-Disposition", "attachment")
	}
}
