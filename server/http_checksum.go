package server

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	log "github.com/sjqzhang/seelog"

	"github.com/sjqzhang/go-resumable/internal/upload"
)

// Checksum compares the content of an upload with the digest in the
// Upload-Checksum header ("sha1 <base64>"): 204 on match, 460 on mismatch.
// Finished uploads are checked against their recorded artifact.
func (c *Server) Checksum(w http.ResponseWriter, r *http.Request) {
	var (
		err      error
		ok       bool
		expected []byte
	)
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Tus-Checksum-Algorithm", strings.Join(upload.SupportedAlgorithms(), ","))
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/checksum/"), "/")
	parts := strings.Fields(r.Header.Get("Upload-Checksum"))
	if id == "" || len(parts) != 2 {
		http.Error(w, "Upload-Checksum must be '<algorithm> <base64 digest>'", http.StatusBadRequest)
		return
	}
	algorithm := strings.ToLower(parts[0])
	if expected, err = base64.StdEncoding.DecodeString(parts[1]); err != nil {
		http.Error(w, "invalid digest encoding", http.StatusBadRequest)
		return
	}
	ok, err = c.store.VerifyChecksum(r.Context(), id, algorithm, expected)
	if errors.Is(err, upload.ErrNotFound) {
		ok, err = c.verifyAsset(r, id, algorithm, expected)
	}
	if err != nil {
		if status := statusOf(err); status == http.StatusInternalServerError {
			log.Error(err)
			w.WriteHeader(status)
		} else {
			http.Error(w, err.Error(), status)
		}
		return
	}
	if !ok {
		w.WriteHeader(CONST_CHECKSUM_MISMATCH)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Server) verifyAsset(r *http.Request, id, algorithm string, expected []byte) (bool, error) {
	if _, err := upload.NewHash(algorithm); err != nil {
		return false, err
	}
	asset, err := c.GetAsset(r.Context(), id)
	if err != nil {
		return false, err
	}
	sum, err := hex.DecodeString(asset.Sha1)
	if err != nil {
		return false, err
	}
	return bytes.Equal(sum, expected), nil
}
