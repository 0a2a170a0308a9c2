package nexus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pokerjest/modlistAutoTool/internal/manifest"
	"github.com/pokerjest/modlistAutoTool/internal/model"
)

var (
	// ErrInvalidCredential 会话凭证为空或格式不对，开跑前就该失败
	ErrInvalidCredential = errors.New("invalid session credential")
	// ErrAuthRejected 远端拒绝了凭证 (401/403)
	ErrAuthRejected = errors.New("session rejected by remote")
	// ErrNotFound 文件已下架 (404 类)，重试无意义
	ErrNotFound = errors.New("file no longer available")
)

const sessionCookieName = "nexusmods_session"

// Link 一条记录的已认证下载目标
// 凭证在 Cookie 里而不在 URL 里，URL 可以放心打日志
type Link struct {
	RecordID string
	URL      string // 直接下载地址
	PageURL  string // mod 页面地址 (delegate 模式用)
}

// ValidateSession 本地语法检查，不发起任何网络请求
func ValidateSession(token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredential)
	}
	if strings.ContainsAny(token, " \t\r\n;") {
		return fmt.Errorf("%w: token contains whitespace or separators", ErrInvalidCredential)
	}
	return nil
}

type Client struct {
	client  *resty.Client
	baseURL string
	session string
	gameID  int
}

func NewClient(baseURL, session string, gameID int) (*Client, error) {
	if err := ValidateSession(session); err != nil {
		return nil, err
	}

	// 确保 baseURL 不以 / 结尾
	baseURL = strings.TrimSuffix(baseURL, "/")

	client := resty.New().
		SetTimeout(15*time.Second).
		SetBaseURL(baseURL).
		SetHeader("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")

	return &Client{
		client:  client,
		baseURL: baseURL,
		session: session,
		gameID:  gameID,
	}, nil
}

// GenerateDownloadLink asks the remote API for a direct download URL for one record.
func (c *Client) GenerateDownloadLink(ctx context.Context, rec model.DownloadRecord) (Link, error) {
	var res struct {
		URL string `json:"url"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"fid":     rec.FileID,
			"game_id": fmt.Sprintf("%d", c.gameID),
		}).
		SetCookie(&http.Cookie{Name: sessionCookieName, Value: c.session}).
		SetResult(&res).
		Post("/Core/Libs/Common/Managers/Downloads?GenerateDownloadUrl")

	if err != nil {
		return Link{}, fmt.Errorf("link generation request failed for %s: %w", rec.ID, err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		// fallthrough below
	case http.StatusUnauthorized, http.StatusForbidden:
		return Link{}, fmt.Errorf("%w (status %d)", ErrAuthRejected, resp.StatusCode())
	case http.StatusNotFound, http.StatusGone:
		return Link{}, fmt.Errorf("%w (status %d)", ErrNotFound, resp.StatusCode())
	default:
		return Link{}, fmt.Errorf("link generation failed for %s: status %s", rec.ID, resp.Status())
	}

	if res.URL == "" {
		return Link{}, fmt.Errorf("%w: remote returned no download url", ErrNotFound)
	}

	return Link{
		RecordID: rec.ID,
		URL:      res.URL,
		PageURL:  manifest.ModPageURL(rec, c.baseURL),
	}, nil
}
