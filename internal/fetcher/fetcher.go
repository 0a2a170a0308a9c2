package fetcher

import (
	"context"
	"errors"

	"github.com/pokerjest/modlistAutoTool/internal/nexus"
)

// Fetcher 把一条链接的内容取到暂存路径
// 两种实现满足同一份完成契约：进程内 HTTP 流式下载，
// 或者交给外部代理 (浏览器) 再轮询落盘结果
type Fetcher interface {
	Fetch(ctx context.Context, link nexus.Link, stagingPath string) error
}

// IsPermanent reports whether a fetch error is pointless to retry.
func IsPermanent(err error) bool {
	return errors.Is(err, nexus.ErrAuthRejected) || errors.Is(err, nexus.ErrNotFound)
}
