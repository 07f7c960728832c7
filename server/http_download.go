package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sjqzhang/seelog"

	"github.com/sjqzhang/go-resumable/internal/blob"
)

var errInvalidRange = errors.New("invalid range")

// parseRange reads a single "bytes=" range against size. ok is false when the
// header is absent.
func parseRange(header string, size int64) (rng blob.Range, ok bool, err error) {
	if header == "" {
		return blob.Range{}, false, nil
	}
	if !strings.HasPrefix(header, "bytes=") {
		return blob.Range{}, false, errInvalidRange
	}
	byteRange := strings.TrimSpace(strings.TrimPrefix(header, "bytes="))
	if strings.Contains(byteRange, ",") {
		return blob.Range{}, false, errInvalidRange
	}
	i := strings.Index(byteRange, "-")
	if i < 0 {
		return blob.Range{}, false, errInvalidRange
	}
	start, end := strings.TrimSpace(byteRange[:i]), strings.TrimSpace(byteRange[i+1:])
	if start == "" {
		// suffix range, the last n bytes
		n, err := strconv.ParseInt(end, 10, 64)
		if err != nil || n <= 0 {
			return blob.Range{}, false, errInvalidRange
		}
		if n > size {
			n = size
		}
		return blob.Range{Offset: size - n, Length: n}, true, nil
	}
	first, err := strconv.ParseInt(start, 10, 64)
	if err != nil || first < 0 || first >= size {
		return blob.Range{}, false, errInvalidRange
	}
	last := size - 1
	if end != "" {
		if last, err = strconv.ParseInt(end, 10, 64); err != nil || last < first {
			return blob.Range{}, false, errInvalidRange
		}
		if last > size-1 {
			last = size - 1
		}
	}
	return blob.Range{Offset: first, Length: last - first + 1}, true, nil
}

// Download streams a finished upload: GET /download/{id}. DELETE removes it
// and is reserved to admin ips.
func (c *Server) Download(w http.ResponseWriter, r *http.Request) {
	var (
		isDownload bool
	)
	if r.Method != http.MethodGet && r.Method != http.MethodHead && r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/download/"), "/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method == http.MethodDelete {
		c.removeDownload(w, r, id)
		return
	}
	asset, err := c.GetAsset(r.Context(), id)
	if err != nil {
		w.WriteHeader(statusOf(err))
		return
	}
	isDownload = r.FormValue("download") != "0"
	c.SetDownloadHeader(w, asset, isDownload)
	rng, partial, err := parseRange(r.Header.Get("Range"), asset.Size)
	if err != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", asset.Size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}
	status := http.StatusOK
	length := asset.Size
	if partial {
		status = http.StatusPartialContent
		length = rng.Length
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Offset, rng.Offset+rng.Length-1, asset.Size))
	}
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead || length == 0 {
		return
	}
	if err = c.assets.Get(r.Context(), id, w, rng); err != nil {
		log.Error(err)
	}
}

func (c *Server) removeDownload(w http.ResponseWriter, r *http.Request, id string) {
	var result JsonResult
	if !c.IsPeer(r) {
		result.Status = "fail"
		result.Message = c.GetClusterNotPermitMessage(r)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(c.util.JsonEncodePretty(result)))
		return
	}
	if _, err := c.GetAsset(r.Context(), id); err != nil {
		w.WriteHeader(statusOf(err))
		return
	}
	if err := c.RemoveAsset(r.Context(), id); err != nil {
		log.Error(err)
		w.WriteHeader(statusOf(err))
		return
	}
	log.Info(fmt.Sprintf("asset %s removed by %s", id, c.util.GetClientIp(r)))
	w.WriteHeader(http.StatusNoContent)
}
