package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pokerjest/modlistAutoTool/internal/nexus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFastHTTPFetcher(retries int) *HTTPFetcher {
	f := NewHTTPFetcher(retries)
	f.backoff = time.Millisecond
	return f
}

func TestHTTPFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	staging := filepath.Join(t.TempDir(), "a.7z.part")
	f := newFastHTTPFetcher(0)

	err := f.Fetch(context.Background(), nexus.Link{RecordID: "1-1", URL: srv.URL}, staging)
	require.NoError(t, err)

	data, err := os.ReadFile(staging)
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
}

func TestHTTPFetchRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte("ok after retries"))
	}))
	defer srv.Close()

	staging := filepath.Join(t.TempDir(), "a.7z.part")
	f := newFastHTTPFetcher(3)

	err := f.Fetch(context.Background(), nexus.Link{RecordID: "1-1", URL: srv.URL}, staging)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetchPermanentNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	staging := filepath.Join(t.TempDir(), "a.7z.part")
	f := newFastHTTPFetcher(3)

	err := f.Fetch(context.Background(), nexus.Link{RecordID: "1-1", URL: srv.URL}, staging)
	require.Error(t, err)
	assert.ErrorIs(t, err, nexus.ErrNotFound)
	assert.True(t, IsPermanent(err))
	// 404 不该消耗重试
	assert.Equal(t, int32(1), calls.Load())

	// 任何失败都不能留下暂存文件
	_, statErr := os.Stat(staging)
	assert.True(t, os.IsNotExist(statErr))
}

func TestHTTPFetchAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := newFastHTTPFetcher(2)
	err := f.Fetch(context.Background(), nexus.Link{RecordID: "1-1", URL: srv.URL},
		filepath.Join(t.TempDir(), "a.part"))
	assert.ErrorIs(t, err, nexus.ErrAuthRejected)
}

func TestHTTPFetchExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newFastHTTPFetcher(2)
	err := f.Fetch(context.Background(), nexus.Link{RecordID: "1-1", URL: srv.URL},
		filepath.Join(t.TempDir(), "a.part"))
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	// 首次 + 2 次重试
	assert.Equal(t, int32(3), calls.Load())
}

func TestDelegateFetchPicksUpDeliveredFile(t *testing.T) {
	watchDir := t.TempDir()
	stagingDir := t.TempDir()
	staging := filepath.Join(stagingDir, "a.7z.part")

	opened := make(chan string, 1)
	f := NewDelegateFetcher(watchDir, 5*time.Second)
	f.pollInterval = 10 * time.Millisecond
	f.openURL = func(url string) error {
		opened <- url
		return nil
	}

	// 模拟外部代理稍后把文件放进监视目录
	go func() {
		time.Sleep(30 * time.Millisecond)
		os.WriteFile(filepath.Join(watchDir, "a.7z"), []byte("delivered"), 0644)
	}()

	link := nexus.Link{RecordID: "1-1", PageURL: "https://www.nexusmods.com/skyrim/mods/1?tab=files&file_id=2"}
	err := f.Fetch(context.Background(), link, staging)
	require.NoError(t, err)

	assert.Equal(t, link.PageURL, <-opened)
	data, err := os.ReadFile(staging)
	require.NoError(t, err)
	assert.Equal(t, "delivered", string(data))
}

func TestDelegateFetchTimeout(t *testing.T) {
	f := NewDelegateFetcher(t.TempDir(), 50*time.Millisecond)
	f.pollInterval = 10 * time.Millisecond
	f.openURL = func(string) error { return nil }

	err := f.Fetch(context.Background(), nexus.Link{RecordID: "1-1"}, filepath.Join(t.TempDir(), "x.part"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
