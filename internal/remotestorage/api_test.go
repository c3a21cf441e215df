package remotestorage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/save-hub/save-hub/internal/cache"
	"github.com/save-hub/save-hub/internal/cloudsync"
	"github.com/save-hub/save-hub/internal/config"
	"github.com/save-hub/save-hub/internal/remote"
	"github.com/save-hub/save-hub/internal/remote/webdav"
)

// davStub 记录各方法的命中次数，GET 正文可配置，默认 404。
type davStub struct {
	mu      sync.Mutex
	mkcols  int
	puts    int
	gets    int
	getBody []byte
}

func (d *davStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		defer d.mu.Unlock()
		switch r.Method {
		case "MKCOL":
			d.mkcols++
			w.WriteHeader(http.StatusCreated)
		case http.MethodPut:
			d.puts++
			io.Copy(io.Discard, r.Body)
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			d.gets++
			if d.getBody == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.Write(d.getBody)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}
}

func (d *davStub) getCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gets
}

func (d *davStub) requestCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mkcols + d.puts + d.gets
}

func facadeConfig(endpoint string, appIDs ...uint32) *config.Config {
	return &config.Config{
		CloudSync: config.SyncConfig{
			Enabled:   true,
			Provider:  "webdav",
			WebDAVUrl: endpoint,
			AppIDs:    appIDs,
		},
	}
}

type facadeEnv struct {
	api   *API
	store cache.Store
}

func newFacadeEnv(t *testing.T, cfg *config.Config) *facadeEnv {
	t.Helper()

	store, err := cache.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	provider := webdav.New(remote.Options{HTTPClient: webdav.NewHTTPClient(2 * time.Second)})
	uploader := cloudsync.NewUploader(cloudsync.UploaderOptions{
		Store:     store,
		Provider:  provider,
		Workers:   1,
		QueueSize: 8,
	})
	syncer, err := cloudsync.New(cloudsync.Options{
		Source:   config.NewStatic(cfg),
		Store:    store,
		Provider: provider,
		Uploader: uploader,
	})
	if err != nil {
		t.Fatalf("failed to create syncer: %v", err)
	}
	t.Cleanup(syncer.Close)

	return &facadeEnv{api: New(syncer, nil), store: store}
}

func newStubEnv(t *testing.T, stub *davStub, appIDs ...uint32) *facadeEnv {
	t.Helper()
	ts := httptest.NewServer(stub.handler())
	t.Cleanup(ts.Close)
	return newFacadeEnv(t, facadeConfig(ts.URL, appIDs...))
}

func TestSaveLifecycle(t *testing.T) {
	env := newStubEnv(t, &davStub{})

	if !env.api.FileWrite(730, "settings.bin", []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("write should succeed")
	}

	buf := make([]byte, 16)
	n := env.api.FileRead(730, "settings.bin", buf)
	if n != 3 {
		t.Fatalf("expected 3 bytes, got %d", n)
	}
	if !bytes.Equal(buf[:3], []byte{0x01, 0x02, 0x03}) {
		t.Fatalf("payload mismatch: %v", buf[:3])
	}

	if !env.api.FileDelete(730, "settings.bin") {
		t.Fatalf("delete should report removal")
	}
	if env.api.FileExists(730, "settings.bin") {
		t.Fatalf("entry should be gone after delete")
	}
}

func TestRoundTrip(t *testing.T) {
	env := newStubEnv(t, &davStub{})

	payload := []byte("round trip body")
	if !env.api.FileWrite(730, "save.dat", payload) {
		t.Fatalf("write should succeed")
	}

	buf := make([]byte, len(payload))
	if n := env.api.FileRead(730, "save.dat", buf); int(n) != len(payload) {
		t.Fatalf("expected %d bytes, got %d", len(payload), n)
	}
	if !bytes.Equal(buf, payload) {
		t.Fatalf("payload mismatch: %q", buf)
	}
}

func TestTruncatingRead(t *testing.T) {
	env := newStubEnv(t, &davStub{})

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	if !env.api.FileWrite(730, "big.bin", payload) {
		t.Fatalf("write should succeed")
	}

	buf := make([]byte, 40)
	if n := env.api.FileRead(730, "big.bin", buf); n != 40 {
		t.Fatalf("expected 40 bytes, got %d", n)
	}
	if !bytes.Equal(buf, payload[:40]) {
		t.Fatalf("expected the first 40 bytes of the original")
	}
}

func TestOutOfScopeSentinels(t *testing.T) {
	stub := &davStub{}
	env := newStubEnv(t, stub, 730)

	if env.api.FileWrite(10, "save.dat", []byte("x")) {
		t.Fatalf("write outside scope should fail")
	}
	if n := env.api.FileRead(10, "save.dat", make([]byte, 4)); n != -1 {
		t.Fatalf("read outside scope should return -1, got %d", n)
	}
	if env.api.FileDelete(10, "save.dat") {
		t.Fatalf("delete outside scope should fail")
	}
	if env.api.FileExists(10, "save.dat") {
		t.Fatalf("exists outside scope should be false")
	}
	if size := env.api.GetFileSize(10, "save.dat"); size != -1 {
		t.Fatalf("size outside scope should return -1, got %d", size)
	}
	if ts := env.api.GetFileTimestamp(10, "save.dat"); ts != 0 {
		t.Fatalf("timestamp outside scope should return 0, got %d", ts)
	}
	if count := env.api.GetFileCount(10); count != 0 {
		t.Fatalf("count outside scope should return 0, got %d", count)
	}
	if name, size := env.api.GetFileNameAndSize(10, 0); name != "" || size != 0 {
		t.Fatalf("enumeration outside scope should return sentinels, got %q %d", name, size)
	}

	// 作用域外既不碰磁盘也不触网。
	if _, err := os.Stat(filepath.Join(env.store.BaseDir(), "10")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("out-of-scope ops must not create app directories: %v", err)
	}
	if stub.requestCount() != 0 {
		t.Fatalf("out-of-scope ops must not reach the remote")
	}
}

func TestWriteAvailabilityWithUnreachableRemote(t *testing.T) {
	// 没有监听者的端口，上传必然失败，但写入不受影响。
	env := newFacadeEnv(t, facadeConfig("http://127.0.0.1:1/dav/"))

	if !env.api.FileWrite(730, "save.dat", []byte("content")) {
		t.Fatalf("write must succeed with the remote down")
	}
	if !env.api.FileExists(730, "save.dat") {
		t.Fatalf("entry should be present locally")
	}
}

func TestReadThroughFallback(t *testing.T) {
	stub := &davStub{getBody: []byte("remote copy")}
	env := newStubEnv(t, stub)

	buf := make([]byte, 32)
	n := env.api.FileRead(730, "cloud.sav", buf)
	if n != int32(len("remote copy")) {
		t.Fatalf("expected remote payload length, got %d", n)
	}
	if string(buf[:n]) != "remote copy" {
		t.Fatalf("payload mismatch: %q", buf[:n])
	}
	if stub.getCount() != 1 {
		t.Fatalf("expected exactly one GET, got %d", stub.getCount())
	}

	if !env.api.FileExists(730, "cloud.sav") {
		t.Fatalf("fallback should have persisted the entry locally")
	}
	if stub.getCount() != 1 {
		t.Fatalf("exists must not issue another GET, got %d", stub.getCount())
	}
}

func TestReadMissReturnsSentinel(t *testing.T) {
	stub := &davStub{} // GET 404
	env := newStubEnv(t, stub)

	if n := env.api.FileRead(730, "ghost.sav", make([]byte, 8)); n != -1 {
		t.Fatalf("expected -1 for a miss surviving fallback, got %d", n)
	}
	if stub.getCount() != 1 {
		t.Fatalf("expected a single fallback GET, got %d", stub.getCount())
	}
}

func TestEnumerationConsistency(t *testing.T) {
	env := newStubEnv(t, &davStub{})

	sizes := map[string]int{
		"zeta.sav":  7,
		"alpha.sav": 3,
		"mid.sav":   11,
	}
	for name, size := range sizes {
		if !env.api.FileWrite(730, name, bytes.Repeat([]byte{'x'}, size)) {
			t.Fatalf("write %s failed", name)
		}
	}

	if count := env.api.GetFileCount(730); count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}

	var names []string
	for i := 0; i < 3; i++ {
		name, size := env.api.GetFileNameAndSize(730, i)
		if name == "" {
			t.Fatalf("index %d should be valid", i)
		}
		if int(size) != sizes[name] {
			t.Fatalf("size mismatch for %s: got %d want %d", name, size, sizes[name])
		}
		names = append(names, name)
	}

	want := []string{"alpha.sav", "mid.sav", "zeta.sav"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("expected filename order %v, got %v", want, names)
		}
	}

	if name, size := env.api.GetFileNameAndSize(730, 3); name != "" || size != 0 {
		t.Fatalf("out-of-range index should return sentinels, got %q %d", name, size)
	}
}

func TestSizeAndTimestampSentinels(t *testing.T) {
	env := newStubEnv(t, &davStub{})

	before := time.Now().Add(-time.Minute).Unix()
	if !env.api.FileWrite(730, "meta.bin", []byte("12345")) {
		t.Fatalf("write should succeed")
	}

	if size := env.api.GetFileSize(730, "meta.bin"); size != 5 {
		t.Fatalf("expected size 5, got %d", size)
	}
	if ts := env.api.GetFileTimestamp(730, "meta.bin"); ts < before {
		t.Fatalf("timestamp should reflect the write: %d", ts)
	}

	if size := env.api.GetFileSize(730, "none.bin"); size != -1 {
		t.Fatalf("missing entry should report -1, got %d", size)
	}
	if ts := env.api.GetFileTimestamp(730, "none.bin"); ts != 0 {
		t.Fatalf("missing entry should report 0, got %d", ts)
	}
}

func TestDisabledFacade(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	api := Disabled(fmt.Errorf("create base dir: %w", errors.New("permission denied")), logger)

	if api.Enabled() {
		t.Fatalf("disabled facade should report Enabled() == false")
	}
	if api.FileWrite(730, "save.dat", []byte("x")) {
		t.Fatalf("disabled write should fail")
	}
	if n := api.FileRead(730, "save.dat", make([]byte, 4)); n != -1 {
		t.Fatalf("disabled read should return -1, got %d", n)
	}
	if api.FileDelete(730, "save.dat") || api.FileExists(730, "save.dat") {
		t.Fatalf("disabled delete/exists should be false")
	}
	if size := api.GetFileSize(730, "save.dat"); size != -1 {
		t.Fatalf("disabled size should return -1, got %d", size)
	}
	if ts := api.GetFileTimestamp(730, "save.dat"); ts != 0 {
		t.Fatalf("disabled timestamp should return 0, got %d", ts)
	}
	if count := api.GetFileCount(730); count != 0 {
		t.Fatalf("disabled count should return 0, got %d", count)
	}
	if name, size := api.GetFileNameAndSize(730, 0); name != "" || size != 0 {
		t.Fatalf("disabled enumeration should return sentinels, got %q %d", name, size)
	}

	// 初始化失败只报告一次，后续调用不再追加日志。
	if got := strings.Count(buf.String(), "cloudsync_init"); got != 1 {
		t.Fatalf("expected a single init failure report, got %d", got)
	}
}
