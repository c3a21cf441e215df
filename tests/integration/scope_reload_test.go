package integration

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/save-hub/save-hub/internal/config"
)

func TestScopeSplitsTraffic(t *testing.T) {
	stub := newDAVStub(t)
	defer stub.Close()

	api, syncer, store := buildSyncStack(t, config.NewStatic(syncedConfig(stub.URL, 730)))

	if !api.FileWrite(730, "managed.sav", []byte("in scope")) {
		t.Fatalf("managed write should succeed")
	}
	if api.FileWrite(480, "unmanaged.sav", []byte("out of scope")) {
		t.Fatalf("unmanaged write should be rejected")
	}

	// 作用域外的调用全部折叠为哨兵，既不碰磁盘也不触网。
	buf := make([]byte, 16)
	if n := api.FileRead(480, "unmanaged.sav", buf); n != -1 {
		t.Fatalf("unmanaged read should return -1, got %d", n)
	}
	if api.FileExists(480, "unmanaged.sav") {
		t.Fatalf("unmanaged exists should be false")
	}
	if count := api.GetFileCount(480); count != 0 {
		t.Fatalf("unmanaged count should be 0, got %d", count)
	}
	if _, err := os.Stat(filepath.Join(store.BaseDir(), "480")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("unmanaged app must not get a cache directory, err=%v", err)
	}

	syncer.Close()
	for _, req := range stub.Requests() {
		if strings.Contains(req.Path, "480") {
			t.Fatalf("unmanaged app leaked to remote: %s %s", req.Method, req.Path)
		}
	}
	if got := stub.MethodCount(http.MethodPut); got != 1 {
		t.Fatalf("expected only the managed upload, got %d", got)
	}
}

func TestConfigReloadRetargetsSync(t *testing.T) {
	stub := newDAVStub(t)
	defer stub.Close()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[CloudSync]\nEnabled = false\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	watcher, err := config.Watch(path, logger)
	if err != nil {
		t.Fatalf("watch config: %v", err)
	}

	api, _, store := buildSyncStack(t, watcher)

	payload := []byte("written after enable")
	if api.FileWrite(730, "reload.sav", payload) {
		t.Fatalf("write should be rejected while sync is disabled")
	}

	enabled := fmt.Sprintf("[CloudSync]\nEnabled = true\nWebDAVUrl = %q\nAppIDs = [730]\n", stub.URL)
	if err := os.WriteFile(path, []byte(enabled), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}

	// 配置在每次调用时重新求值：热更新生效后，同一调用开始放行。
	waitUntil(t, 5*time.Second, func() bool {
		return api.FileWrite(730, "reload.sav", payload)
	}, "write to pass after enabling sync")

	waitUntil(t, 5*time.Second, func() bool {
		return stub.MethodCount(http.MethodPut) >= 1
	}, "replication of the enabled write")
	body, ok := stub.Object("/save-hub/730/reload.sav")
	if !ok || !bytes.Equal(body, payload) {
		t.Fatalf("remote object after reload: ok=%v body=%q", ok, body)
	}

	disabled := "[CloudSync]\nEnabled = false\n"
	if err := os.WriteFile(path, []byte(disabled), 0o600); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	waitUntil(t, 5*time.Second, func() bool {
		return !api.FileWrite(730, "reload.sav", payload)
	}, "write to be rejected after disabling sync")

	// 关闭同步只是停止接管，已落盘的存档原样保留。
	if _, err := os.Stat(filepath.Join(store.BaseDir(), "730", "reload.sav")); err != nil {
		t.Fatalf("local entry should survive disable: %v", err)
	}
}
