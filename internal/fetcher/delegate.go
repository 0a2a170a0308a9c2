package fetcher

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pokerjest/modlistAutoTool/internal/nexus"
)

// DelegateFetcher 把 mod 页面交给外部代理 (系统浏览器)，
// 然后轮询监视目录等文件出现并稳定，再挪到暂存路径走统一的校验流程
// 对应手动 "浏览器点下载" 的工作方式，批次节奏由操作者把控
type DelegateFetcher struct {
	watchDir     string
	timeout      time.Duration
	pollInterval time.Duration
	openURL      func(url string) error // 可注入，测试用
}

func NewDelegateFetcher(watchDir string, timeout time.Duration) *DelegateFetcher {
	return &DelegateFetcher{
		watchDir:     watchDir,
		timeout:      timeout,
		pollInterval: 2 * time.Second,
		openURL:      openInBrowser,
	}
}

func (f *DelegateFetcher) Fetch(ctx context.Context, link nexus.Link, stagingPath string) error {
	// 期望的文件名 = 暂存名去掉 .part 后缀
	expectedName := strings.TrimSuffix(filepath.Base(stagingPath), ".part")
	expectedPath := filepath.Join(f.watchDir, expectedName)

	if err := f.openURL(link.PageURL); err != nil {
		return fmt.Errorf("failed to hand off %s to external agent: %w", link.RecordID, err)
	}

	deadline := time.Now().Add(f.timeout)
	var lastSize int64 = -1

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.pollInterval):
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for external agent to deliver %s", expectedName)
		}

		info, err := os.Stat(expectedPath)
		if err != nil {
			continue
		}

		// 连续两次轮询大小不变才算写完
		if info.Size() > 0 && info.Size() == lastSize {
			if err := os.MkdirAll(filepath.Dir(stagingPath), 0755); err != nil {
				return err
			}
			return os.Rename(expectedPath, stagingPath)
		}
		lastSize = info.Size()
	}
}

// 保证两种实现都满足 Fetcher 契约
var (
	_ Fetcher = (*HTTPFetcher)(nil)
	_ Fetcher = (*DelegateFetcher)(nil)
)

func openInBrowser(url string) error {
	switch runtime.GOOS {
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		return exec.Command("open", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
