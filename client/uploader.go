package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tus "github.com/eventials/go-tus"
	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sjqzhang/seelog"

	"github.com/sjqzhang/go-resumable/internal/upload"
)

const (
	headerTusResumable   = "Tus-Resumable"
	headerUploadOffset   = "Upload-Offset"
	headerUploadLength   = "Upload-Length"
	headerUploadMetadata = "Upload-Metadata"
	offsetContentType    = "application/offset+octet-stream"
)

var (
	// ErrUploadIncomplete means the source ended before the declared size.
	// The upload stays on the server and can be resumed with the same id.
	ErrUploadIncomplete = errors.New("upload incomplete")
	ErrNoLocation       = errors.New("server returned no upload location")
)

// Options tune one Upload call.
type Options struct {
	// FileID resumes a previous upload when set.
	FileID   string
	Handler  Handler
	Metadata map[string]string
}

// Uploader drives resumable uploads against a tus endpoint.
type Uploader struct {
	client *retryablehttp.Client
	header http.Header
}

type Option func(*Uploader)

// WithRetry sets how often metadata requests are retried.
func WithRetry(max int, waitMin, waitMax time.Duration) Option {
	return func(u *Uploader) {
		u.client.RetryMax = max
		u.client.RetryWaitMin = waitMin
		u.client.RetryWaitMax = waitMax
	}
}

func WithHeader(key, value string) Option {
	return func(u *Uploader) {
		u.header.Set(key, value)
	}
}

func NewUploader(opts ...Option) *Uploader {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = leveledLogger{}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	u := &Uploader{client: client, header: make(http.Header)}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload sends file to endpoint. It reports through opts.Handler only and
// never fails on its own: every error ends in a single OnFailed.
func (u *Uploader) Upload(ctx context.Context, endpoint string, file UploadFile, opts Options) {
	handler := opts.Handler
	if handler == nil {
		handler = HandlerFuncs{}
	}
	r := &run{u: u, endpoint: strings.TrimRight(endpoint, "/"), file: file, opts: opts, handler: handler, id: opts.FileID}
	r.do(ctx)
}

type run struct {
	u        *Uploader
	endpoint string
	file     UploadFile
	opts     Options
	handler  Handler
	id       string
	finished bool
}

func (r *run) do(ctx context.Context) {
	defer func() {
		if re := recover(); re != nil && !r.finished {
			r.fail(fmt.Errorf("upload panic: %v", re))
		}
	}()
	status, err := r.send(ctx)
	if err != nil {
		r.fail(err)
		return
	}
	r.finished = true
	r.handler.OnCompleted(Completed{FileID: r.id, StatusCode: status})
	bestEffort("terminate "+r.id, func() error {
		return r.u.terminate(ctx, r.uploadURL())
	})
}

func (r *run) fail(err error) {
	r.finished = true
	log.Warnf("upload %s failed: %v", r.id, err)
	r.handler.OnFailed(Failed{FileID: r.id, Err: err})
}

func (r *run) uploadURL() string {
	return r.endpoint + "/" + url.PathEscape(r.id)
}

func (r *run) send(ctx context.Context) (int, error) {
	var (
		offset int64
		err    error
	)
	if r.id != "" {
		if offset, err = r.u.offset(ctx, r.uploadURL()); err != nil {
			return 0, err
		}
	}
	if r.id == "" || offset == 0 {
		if r.id, err = r.u.create(ctx, r.endpoint, r.file, r.opts.Metadata); err != nil {
			return 0, err
		}
		offset = 0
	}
	if offset > r.file.Size {
		return 0, fmt.Errorf("server offset %d beyond file size %d", offset, r.file.Size)
	}
	if _, err = r.file.Reader.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}

	tracker := newProgressTracker(r.handler, r.id, offset, r.file.Size)
	if offset == r.file.Size {
		tracker.done()
		return http.StatusNoContent, nil
	}
	tracker.report()
	body := upload.NewCancellableReader(ctx, &progressReader{r: r.file.Reader, tracker: tracker})
	status, newOffset, err := r.u.patch(ctx, r.uploadURL(), offset, body)
	if err != nil {
		return status, err
	}
	if newOffset < r.file.Size {
		return status, fmt.Errorf("%w: %s at %d of %d bytes", ErrUploadIncomplete, r.id, newOffset, r.file.Size)
	}
	tracker.done()
	return status, nil
}

func (u *Uploader) newRequest(ctx context.Context, method, target string) (*retryablehttp.Request, error) {
	req, err := retryablehttp.NewRequest(method, target, nil)
	if err != nil {
		return nil, err
	}
	req = req.WithContext(ctx)
	for k, v := range u.header {
		req.Header[k] = v
	}
	req.Header.Set(headerTusResumable, tus.ProtocolVersion)
	return req, nil
}

func checkVersion(res *http.Response) error {
	if v := res.Header.Get(headerTusResumable); v != tus.ProtocolVersion {
		return fmt.Errorf("%w: server speaks %q", tus.ErrVersionMismatch, v)
	}
	return nil
}

// offset asks the server how many bytes it holds. Unknown uploads count as zero.
func (u *Uploader) offset(ctx context.Context, target string) (int64, error) {
	req, err := u.newRequest(ctx, http.MethodHead, target)
	if err != nil {
		return 0, err
	}
	res, err := u.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusOK:
		if err = checkVersion(res); err != nil {
			return 0, err
		}
		return strconv.ParseInt(res.Header.Get(headerUploadOffset), 10, 64)
	case http.StatusNotFound, http.StatusGone, http.StatusForbidden:
		return 0, nil
	case http.StatusPreconditionFailed:
		return 0, tus.ErrVersionMismatch
	default:
		return 0, newClientError(res)
	}
}

func (u *Uploader) create(ctx context.Context, endpoint string, file UploadFile, extra map[string]string) (string, error) {
	metadata := tus.Metadata{
		"filename": file.FileName,
		"filetype": file.MimeType,
	}
	for k, v := range extra {
		metadata[k] = v
	}
	req, err := u.newRequest(ctx, http.MethodPost, endpoint+"/")
	if err != nil {
		return "", err
	}
	req.Header.Set(headerUploadLength, strconv.FormatInt(file.Size, 10))
	req.Header.Set(headerUploadMetadata, tus.NewUpload(file.Reader, file.Size, metadata, "").EncodedMetadata())

	res, err := u.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusCreated:
	case http.StatusPreconditionFailed:
		return "", tus.ErrVersionMismatch
	case http.StatusRequestEntityTooLarge:
		return "", tus.ErrLargeUpload
	default:
		return "", newClientError(res)
	}
	if err = checkVersion(res); err != nil {
		return "", err
	}
	location := strings.TrimRight(res.Header.Get("Location"), "/")
	if location == "" {
		return "", ErrNoLocation
	}
	id := location[strings.LastIndex(location, "/")+1:]
	if id, err = url.PathUnescape(id); err != nil {
		return "", err
	}
	log.Infof("upload %s created for %s", id, file.FileName)
	return id, nil
}

// patch streams body in one chunked request. It cannot be replayed, so it
// goes through the plain http client.
func (u *Uploader) patch(ctx context.Context, target string, offset int64, body io.Reader) (int, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, target, body)
	if err != nil {
		return 0, 0, err
	}
	for k, v := range u.header {
		req.Header[k] = v
	}
	req.ContentLength = -1
	req.Header.Set(headerTusResumable, tus.ProtocolVersion)
	req.Header.Set("Content-Type", offsetContentType)
	req.Header.Set(headerUploadOffset, strconv.FormatInt(offset, 10))

	res, err := u.client.HTTPClient.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusNoContent:
		newOffset, err := strconv.ParseInt(res.Header.Get(headerUploadOffset), 10, 64)
		return res.StatusCode, newOffset, err
	case http.StatusConflict:
		return res.StatusCode, 0, tus.ErrOffsetMismatch
	case http.StatusPreconditionFailed:
		return res.StatusCode, 0, tus.ErrVersionMismatch
	case http.StatusRequestEntityTooLarge:
		return res.StatusCode, 0, tus.ErrLargeUpload
	case http.StatusNotFound, http.StatusGone:
		return res.StatusCode, 0, tus.ErrUploadNotFound
	default:
		return res.StatusCode, 0, newClientError(res)
	}
}

func (u *Uploader) terminate(ctx context.Context, target string) error {
	req, err := u.newRequest(ctx, http.MethodDelete, target)
	if err != nil {
		return err
	}
	res, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	switch res.StatusCode {
	case http.StatusNoContent, http.StatusNotFound, http.StatusGone:
		return nil
	}
	return newClientError(res)
}

func newClientError(res *http.Response) tus.ClientError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return tus.ClientError{Code: res.StatusCode, Body: body}
}
