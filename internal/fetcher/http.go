package fetcher

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pokerjest/modlistAutoTool/internal/nexus"
)

// HTTPFetcher 进程内流式下载实现
// 响应体只写到暂存文件，促升到最终文件名是校验器的事
type HTTPFetcher struct {
	client     *resty.Client
	retryLimit int
	backoff    time.Duration // 首次重试的等待，之后指数翻倍
}

func NewHTTPFetcher(retryLimit int) *HTTPFetcher {
	client := resty.New().
		SetTimeout(0). // 大文件不限总时长，靠 ctx 取消
		SetHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	return &HTTPFetcher{
		client:     client,
		retryLimit: retryLimit,
		backoff:    time.Second,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, link nexus.Link, stagingPath string) error {
	var lastErr error

	for attempt := 0; attempt <= f.retryLimit; attempt++ {
		if attempt > 0 {
			wait := f.backoff << (attempt - 1)
			log.Printf("fetcher: retrying %s in %s (attempt %d/%d)", link.RecordID, wait, attempt, f.retryLimit)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				f.cleanup(stagingPath)
				return ctx.Err()
			}
		}

		lastErr = f.fetchOnce(ctx, link, stagingPath)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) || ctx.Err() != nil {
			break
		}
	}

	f.cleanup(stagingPath)
	return lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, link nexus.Link, stagingPath string) error {
	if err := os.MkdirAll(filepath.Dir(stagingPath), 0755); err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(link.URL)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	switch {
	case resp.StatusCode() == http.StatusOK:
		// fallthrough below
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", nexus.ErrAuthRejected, resp.StatusCode())
	case resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusGone:
		return fmt.Errorf("%w (status %d)", nexus.ErrNotFound, resp.StatusCode())
	default:
		// 5xx 等其它状态按瞬态处理，交给重试
		return fmt.Errorf("unexpected status %s", resp.Status())
	}

	out, err := os.Create(stagingPath)
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}

	written, copyErr := io.Copy(out, body)
	closeErr := out.Close()
	if copyErr != nil {
		f.cleanup(stagingPath)
		return fmt.Errorf("transfer interrupted after %d bytes: %w", written, copyErr)
	}
	if closeErr != nil {
		f.cleanup(stagingPath)
		return fmt.Errorf("failed to flush staging file: %w", closeErr)
	}

	if cl := resp.RawResponse.ContentLength; cl > 0 && written != cl {
		f.cleanup(stagingPath)
		return fmt.Errorf("short transfer: got %d of %d bytes", written, cl)
	}

	return nil
}

func (f *HTTPFetcher) cleanup(stagingPath string) {
	if err := os.Remove(stagingPath); err != nil && !os.IsNotExist(err) {
		log.Printf("fetcher: failed to remove staging file %s: %v", stagingPath, err)
	}
}
