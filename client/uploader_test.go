package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	stdlog "log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tus "github.com/eventials/go-tus"
	"github.com/sjqzhang/tusd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sjqzhang/go-resumable/internal/blob"
	"github.com/sjqzhang/go-resumable/internal/kv"
	"github.com/sjqzhang/go-resumable/internal/tusstore"
	"github.com/sjqzhang/go-resumable/internal/upload"
)

type finishedUpload struct {
	data     []byte
	name     string
	mimeType string
	metadata map[string]string
}

type testServer struct {
	*httptest.Server
	store      *upload.Store
	patched    int64
	failDelete bool

	mu       sync.Mutex
	finished map[string]finishedUpload
}

type countingBody struct {
	io.ReadCloser
	n *int64
}

func (c countingBody) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	atomic.AddInt64(c.n, int64(n))
	return n, err
}

func newTestServer(t *testing.T) *testServer {
	ts := &testServer{
		store:    upload.NewStore(blob.NewMemory(), kv.NewMemory(), upload.Options{TempDir: t.TempDir(), KeepPartsOnAssemble: true}),
		finished: make(map[string]finishedUpload),
	}
	ds := tusstore.New(ts.store, func(ctx context.Context, id string) error {
		var done finishedUpload
		f, err := ts.store.Assemble(ctx, id)
		switch {
		case errors.Is(err, upload.ErrNotFound):
			done.data = []byte{}
		case err != nil:
			return err
		default:
			defer f.Close()
			if done.data, err = io.ReadAll(f.Reader()); err != nil {
				return err
			}
			done.name, done.mimeType, done.metadata = f.Name, f.MimeType, f.Metadata
		}
		ts.mu.Lock()
		ts.finished[id] = done
		ts.mu.Unlock()
		return nil
	})
	composer := tusd.NewStoreComposer()
	ds.UseIn(composer)
	handler, err := tusd.NewHandler(tusd.Config{
		Logger:        stdlog.New(io.Discard, "", 0),
		BasePath:      "/files/",
		StoreComposer: composer,
	})
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.Handle("/files/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete && ts.failDelete {
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		if r.Method == http.MethodPatch {
			r.Body = countingBody{ReadCloser: r.Body, n: &ts.patched}
		}
		http.StripPrefix("/files/", handler).ServeHTTP(w, r)
	}))
	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) endpoint() string {
	return ts.URL + "/files/"
}

func (ts *testServer) result(id string) (finishedUpload, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	f, ok := ts.finished[id]
	return f, ok
}

type recorder struct {
	progress  []Progress
	completed []Completed
	failed    []Failed
}

func (r *recorder) OnProgress(e Progress)   { r.progress = append(r.progress, e) }
func (r *recorder) OnCompleted(e Completed) { r.completed = append(r.completed, e) }
func (r *recorder) OnFailed(e Failed)       { r.failed = append(r.failed, e) }

func (r *recorder) assertProgress(t *testing.T) {
	require.NotEmpty(t, r.progress)
	for i := 1; i < len(r.progress); i++ {
		assert.Greater(t, r.progress[i].Progress, r.progress[i-1].Progress)
	}
	assert.Equal(t, 100, r.progress[len(r.progress)-1].Progress)
}

func testUploader() *Uploader {
	return NewUploader(WithRetry(0, time.Millisecond, time.Millisecond))
}

func payload(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

func TestUploadCompletes(t *testing.T) {
	ts := newTestServer(t)
	data := payload(100 * 1024)
	rec := &recorder{}

	testUploader().Upload(context.Background(), ts.endpoint(), UploadFile{
		Reader:   bytes.NewReader(data),
		Size:     int64(len(data)),
		FileName: "data.bin",
		MimeType: "application/x-test",
	}, Options{Handler: rec, Metadata: map[string]string{"scene": "default"}})

	require.Empty(t, rec.failed)
	require.Len(t, rec.completed, 1)
	rec.assertProgress(t)
	id := rec.completed[0].FileID
	assert.NotEmpty(t, id)
	assert.Equal(t, http.StatusNoContent, rec.completed[0].StatusCode)

	done, ok := ts.result(id)
	require.True(t, ok)
	assert.Equal(t, data, done.data)
	assert.Equal(t, "data.bin", done.name)
	assert.Equal(t, "application/x-test", done.mimeType)
	assert.Equal(t, "default", done.metadata["scene"])

	exists, err := ts.store.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, exists, "terminated after completion")
}

func TestUploadResumes(t *testing.T) {
	ts := newTestServer(t)
	data := payload(1000)
	up := testUploader()

	first := &recorder{}
	up.Upload(context.Background(), ts.endpoint(), UploadFile{
		Reader:   bytes.NewReader(data[:600]),
		Size:     int64(len(data)),
		FileName: "resume.bin",
	}, Options{Handler: first})

	require.Empty(t, first.completed)
	require.Len(t, first.failed, 1)
	assert.ErrorIs(t, first.failed[0].Err, ErrUploadIncomplete)
	id := first.failed[0].FileID
	require.NotEmpty(t, id)

	offset, err := ts.store.GetOffset(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(600), offset)
	assert.Equal(t, int64(600), atomic.LoadInt64(&ts.patched))

	atomic.StoreInt64(&ts.patched, 0)
	second := &recorder{}
	up.Upload(context.Background(), ts.endpoint(), UploadFile{
		Reader:   bytes.NewReader(data),
		Size:     int64(len(data)),
		FileName: "resume.bin",
	}, Options{FileID: id, Handler: second})

	require.Empty(t, second.failed)
	require.Len(t, second.completed, 1)
	assert.Equal(t, id, second.completed[0].FileID)
	assert.Equal(t, int64(400), atomic.LoadInt64(&ts.patched))
	second.assertProgress(t)
	assert.GreaterOrEqual(t, second.progress[0].Progress, 60)

	done, ok := ts.result(id)
	require.True(t, ok)
	assert.Equal(t, data, done.data)
}

func TestUploadUnknownIDStartsOver(t *testing.T) {
	ts := newTestServer(t)
	data := payload(10)
	rec := &recorder{}

	testUploader().Upload(context.Background(), ts.endpoint(), UploadFile{
		Reader: bytes.NewReader(data),
		Size:   int64(len(data)),
	}, Options{FileID: "gone", Handler: rec})

	require.Empty(t, rec.failed)
	require.Len(t, rec.completed, 1)
	assert.NotEqual(t, "gone", rec.completed[0].FileID)
}

func TestUploadEmptyFile(t *testing.T) {
	ts := newTestServer(t)
	rec := &recorder{}

	testUploader().Upload(context.Background(), ts.endpoint(), UploadFile{
		Reader: bytes.NewReader(nil),
		Size:   0,
	}, Options{Handler: rec})

	require.Empty(t, rec.failed)
	require.Len(t, rec.completed, 1)
	rec.assertProgress(t)
	assert.Equal(t, 0, int(atomic.LoadInt64(&ts.patched)))
}

func TestUploadCancelled(t *testing.T) {
	ts := newTestServer(t)
	data := payload(10)
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	testUploader().Upload(ctx, ts.endpoint(), UploadFile{
		Reader: bytes.NewReader(data),
		Size:   int64(len(data)),
	}, Options{Handler: rec})

	assert.Empty(t, rec.completed)
	require.Len(t, rec.failed, 1)
	assert.ErrorIs(t, rec.failed[0].Err, context.Canceled)
}

func TestTerminateFailureIsSwallowed(t *testing.T) {
	ts := newTestServer(t)
	ts.failDelete = true
	data := payload(32)
	rec := &recorder{}

	testUploader().Upload(context.Background(), ts.endpoint(), UploadFile{
		Reader: bytes.NewReader(data),
		Size:   int64(len(data)),
	}, Options{Handler: rec})

	assert.Empty(t, rec.failed)
	require.Len(t, rec.completed, 1)
	exists, err := ts.store.Exists(context.Background(), rec.completed[0].FileID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUploadVersionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/files/abc")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	rec := &recorder{}

	testUploader().Upload(context.Background(), srv.URL+"/files/", UploadFile{
		Reader: bytes.NewReader([]byte("x")),
		Size:   1,
	}, Options{Handler: rec})

	assert.Empty(t, rec.completed)
	require.Len(t, rec.failed, 1)
	assert.ErrorIs(t, rec.failed[0].Err, tus.ErrVersionMismatch)
}

func TestUploadServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Tus-Resumable", tus.ProtocolVersion)
		http.Error(w, "broken", http.StatusInternalServerError)
	}))
	defer srv.Close()
	rec := &recorder{}

	testUploader().Upload(context.Background(), srv.URL, UploadFile{
		Reader: bytes.NewReader([]byte("x")),
		Size:   1,
	}, Options{Handler: rec})

	require.Len(t, rec.failed, 1)
	var clientErr tus.ClientError
	require.ErrorAs(t, rec.failed[0].Err, &clientErr)
	assert.Equal(t, http.StatusInternalServerError, clientErr.Code)
}

func TestBestEffort(t *testing.T) {
	called := false
	err := bestEffort("cleanup", func() error {
		called = true
		return errors.New("unreachable host")
	})
	assert.True(t, called)
	assert.NoError(t, err)
}

func TestProgressTracker(t *testing.T) {
	rec := &recorder{}
	tracker := newProgressTracker(rec, "id", 0, 1000)
	for i := 0; i < 1000; i++ {
		tracker.add(1)
	}
	tracker.done()
	assert.Len(t, rec.progress, 101)
	rec.assertProgress(t)

	rec = &recorder{}
	tracker = newProgressTracker(rec, "id", 500, 1000)
	tracker.report()
	tracker.add(3)
	tracker.add(2)
	tracker.done()
	assert.Equal(t, []int{50, 100}, []int{rec.progress[0].Progress, rec.progress[len(rec.progress)-1].Progress})
	assert.Len(t, rec.progress, 2)
}

func TestProgressTrackerConcurrent(t *testing.T) {
	rec := &recorder{}
	tracker := newProgressTracker(rec, "id", 0, 1000)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tracker.add(1)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.done()
	}()
	wg.Wait()
	rec.assertProgress(t)
}

func TestProgressHandlerPanic(t *testing.T) {
	ts := newTestServer(t)
	data := payload(1 << 20)
	var (
		completed []Completed
		failed    []Failed
	)

	testUploader().Upload(context.Background(), ts.endpoint(), UploadFile{
		Reader: bytes.NewReader(data),
		Size:   int64(len(data)),
	}, Options{Handler: HandlerFuncs{
		Progress: func(e Progress) {
			if e.Progress >= 50 && e.Progress < 100 {
				panic("handler bug")
			}
		},
		Completed: func(e Completed) { completed = append(completed, e) },
		Failed:    func(e Failed) { failed = append(failed, e) },
	}})

	assert.Empty(t, completed)
	require.Len(t, failed, 1)
	assert.NotEmpty(t, failed[0].FileID)
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

	f, err := OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, int64(5), f.Size)
	assert.Equal(t, "notes.txt", f.FileName)
	assert.Contains(t, f.MimeType, "text/plain")

	_, err = OpenFile(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
