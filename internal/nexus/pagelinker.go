package nexus

import (
	"context"
	"strings"

	"github.com/pokerjest/modlistAutoTool/internal/manifest"
	"github.com/pokerjest/modlistAutoTool/internal/model"
)

// PageLinker 不调远端 API，直接把 mod 页面当下载目标
// delegate 模式专用：鉴权交给外部浏览器自己的会话，引擎不经手凭证
type PageLinker struct {
	baseURL string
}

func NewPageLinker(baseURL string) *PageLinker {
	return &PageLinker{baseURL: strings.TrimSuffix(baseURL, "/")}
}

func (p *PageLinker) GenerateDownloadLink(_ context.Context, rec model.DownloadRecord) (Link, error) {
	page := manifest.ModPageURL(rec, p.baseURL)
	return Link{RecordID: rec.ID, URL: page, PageURL: page}, nil
}
