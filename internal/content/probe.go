package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/rentfree/internal/security"
)

// ProbeResult はリモートメディアへの問い合わせ結果。
type ProbeResult struct {
	StatusCode int
	Size       int64 // Content-Length。不明なら0
}

// Prober はリモートメディアのサイズをHTTPで取得する。
// 接続先はSSRFガード付きクライアントに限定する。
type Prober struct {
	client   *http.Client
	validate func(rawURL string) error
}

// NewProber はProberを生成する。
func NewProber(guard security.SSRFGuardService, timeout time.Duration) *Prober {
	return &Prober{
		client:   guard.NewSafeClient(timeout),
		validate: guard.ValidateURL,
	}
}

// Probe はHEADでContent-Lengthを取得する。
// HEADを受け付けないサーバーにはGETし、ヘッダーのみ読んで切断する。
func (p *Prober) Probe(ctx context.Context, rawURL string) (ProbeResult, error) {
	if err := p.validate(rawURL); err != nil {
		return ProbeResult{}, fmt.Errorf("リモートメディアURLが不正です: %w", err)
	}

	resp, err := p.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return ProbeResult{}, err
	}
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		resp, err = p.do(ctx, http.MethodGet, rawURL)
		if err != nil {
			return ProbeResult{}, err
		}
	}

	result := ProbeResult{StatusCode: resp.StatusCode}
	if resp.StatusCode == http.StatusOK && resp.ContentLength > 0 {
		result.Size = resp.ContentLength
	}
	return result, nil
}

func (p *Prober) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "rentfree-media-probe/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("リモートメディアへの接続に失敗しました: %w", err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 0))
	resp.Body.Close()
	return resp, nil
}
