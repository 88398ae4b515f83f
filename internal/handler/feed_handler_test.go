package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/rentfree/internal/feed"
	"github.com/hitoshi/rentfree/internal/model"
)

// --- モック定義 ---

// mockFeedService はFeedServiceInterfaceのモック実装。
type mockFeedService struct {
	publicFeedFn  func(ctx context.Context, slug string) (*feed.Document, error)
	premiumFeedFn func(ctx context.Context, slug, uidb64, tok string) (*feed.Document, error)
}

func (m *mockFeedService) PublicFeed(ctx context.Context, slug string) (*feed.Document, error) {
	if m.publicFeedFn != nil {
		return m.publicFeedFn(ctx, slug)
	}
	return nil, model.ErrInvalidFeedState
}

func (m *mockFeedService) PremiumFeed(ctx context.Context, slug, uidb64, tok string) (*feed.Document, error) {
	if m.premiumFeedFn != nil {
		return m.premiumFeedFn(ctx, slug, uidb64, tok)
	}
	return nil, model.ErrAccessDenied
}

// --- テストヘルパー ---

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

func testDocument() *feed.Document {
	body := []byte(`<?xml version="1.0" encoding="utf-8"?><rss version="2.0"><channel><title>t</title></channel></rss>`)
	return &feed.Document{Body: body, ETag: feed.ETag(body), ItemCount: 1}
}

// --- GET /{slug}/rss/ ---

func TestFeedHandler_PublicFeed_Success(t *testing.T) {
	doc := testDocument()
	var gotSlug string
	svc := &mockFeedService{
		publicFeedFn: func(ctx context.Context, slug string) (*feed.Document, error) {
			gotSlug = slug
			return doc, nil
		},
	}
	h := NewFeedHandler(svc, 15*time.Minute, nil)

	req := httptest.NewRequest(http.MethodGet, "/podcast/rss/", nil)
	req = withChiURLParams(req, map[string]string{"slug": "podcast"})
	w := httptest.NewRecorder()

	h.PublicFeed(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotSlug != "podcast" {
		t.Errorf("slug = %q, want podcast", gotSlug)
	}
	if ct := w.Header().Get("Content-Type"); ct != RSSContentType {
		t.Errorf("Content-Type = %q, want %q", ct, RSSContentType)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "public, max-age=900" {
		t.Errorf("Cache-Control = %q, want %q", cc, "public, max-age=900")
	}
	if etag := w.Header().Get("ETag"); etag != doc.ETag {
		t.Errorf("ETag = %q, want %q", etag, doc.ETag)
	}
	if w.Body.String() != string(doc.Body) {
		t.Errorf("body = %q, want %q", w.Body.String(), doc.Body)
	}
}

func TestFeedHandler_PublicFeed_ConditionalGet(t *testing.T) {
	doc := testDocument()
	svc := &mockFeedService{
		publicFeedFn: func(ctx context.Context, slug string) (*feed.Document, error) {
			return doc, nil
		},
	}
	h := NewFeedHandler(svc, time.Minute, nil)

	tests := []struct {
		name        string
		ifNoneMatch string
		wantStatus  int
	}{
		{"一致するETagは304", doc.ETag, http.StatusNotModified},
		{"弱いETagも一致とみなす", "W/" + doc.ETag, http.StatusNotModified},
		{"複数指定のいずれかが一致すれば304", `"other", ` + doc.ETag, http.StatusNotModified},
		{"ワイルドカードは304", "*", http.StatusNotModified},
		{"不一致は200", `"stale"`, http.StatusOK},
		{"ヘッダーなしは200", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/podcast/rss/", nil)
			req = withChiURLParams(req, map[string]string{"slug": "podcast"})
			if tt.ifNoneMatch != "" {
				req.Header.Set("If-None-Match", tt.ifNoneMatch)
			}
			w := httptest.NewRecorder()

			h.PublicFeed(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusNotModified && w.Body.Len() != 0 {
				t.Errorf("304 must not carry a body, got %d bytes", w.Body.Len())
			}
		})
	}
}

func TestFeedHandler_PublicFeed_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"インデックスなしまたは0件は404", fmt.Errorf("x: %w", model.ErrInvalidFeedState), http.StatusNotFound, model.ErrCodeNotFound},
		{"不正なコンテンツは500", model.ErrMalformedContent, http.StatusInternalServerError, model.ErrCodeFeedUnavailable},
		{"直列化失敗は500", model.ErrUnserializableContent, http.StatusInternalServerError, model.ErrCodeFeedUnavailable},
		{"その他は500", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockFeedService{
				publicFeedFn: func(ctx context.Context, slug string) (*feed.Document, error) {
					return nil, tt.err
				},
			}
			h := NewFeedHandler(svc, time.Minute, nil)

			req := httptest.NewRequest(http.MethodGet, "/podcast/rss/", nil)
			req = withChiURLParams(req, map[string]string{"slug": "podcast"})
			w := httptest.NewRecorder()

			h.PublicFeed(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if body := parseAPIErrorResponse(t, w); body["code"] != tt.wantCode {
				t.Errorf("code = %q, want %q", body["code"], tt.wantCode)
			}
		})
	}
}

// --- GET /{slug}/premiumfeed/{uidb64}/{token}/ ---

func TestFeedHandler_PremiumFeed_Success(t *testing.T) {
	doc := testDocument()
	var gotSlug, gotUID, gotToken string
	svc := &mockFeedService{
		premiumFeedFn: func(ctx context.Context, slug, uidb64, tok string) (*feed.Document, error) {
			gotSlug, gotUID, gotToken = slug, uidb64, tok
			return doc, nil
		},
	}
	h := NewFeedHandler(svc, time.Minute, nil)

	req := httptest.NewRequest(http.MethodGet, "/podcast/premiumfeed/MQ/tok-1/", nil)
	req.Header.Set("If-None-Match", doc.ETag)
	req = withChiURLParams(req, map[string]string{"slug": "podcast", "uidb64": "MQ", "token": "tok-1"})
	w := httptest.NewRecorder()

	h.PremiumFeed(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotSlug != "podcast" || gotUID != "MQ" || gotToken != "tok-1" {
		t.Errorf("params = (%q, %q, %q), want (podcast, MQ, tok-1)", gotSlug, gotUID, gotToken)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "private, no-cache, no-store" {
		t.Errorf("Cache-Control = %q, want %q", cc, "private, no-cache, no-store")
	}
	if etag := w.Header().Get("ETag"); etag != "" {
		t.Errorf("premium feed must not carry an ETag, got %q", etag)
	}
}

func TestFeedHandler_PremiumFeed_DeniedBodyIsUniform(t *testing.T) {
	reasons := []error{
		fmt.Errorf("uidb64: %w", model.ErrAccessDenied),
		fmt.Errorf("token: %w", model.ErrAccessDenied),
		fmt.Errorf("status: %w", model.ErrAccessDenied),
	}

	var bodies []string
	for _, reason := range reasons {
		svc := &mockFeedService{
			premiumFeedFn: func(ctx context.Context, slug, uidb64, tok string) (*feed.Document, error) {
				return nil, reason
			},
		}
		h := NewFeedHandler(svc, time.Minute, nil)

		req := httptest.NewRequest(http.MethodGet, "/podcast/premiumfeed/MQ/bad/", nil)
		req = withChiURLParams(req, map[string]string{"slug": "podcast", "uidb64": "MQ", "token": "bad"})
		w := httptest.NewRecorder()

		h.PremiumFeed(w, req)

		if w.Code != http.StatusForbidden {
			t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
		}
		bodies = append(bodies, w.Body.String())
	}

	for i := 1; i < len(bodies); i++ {
		if bodies[i] != bodies[0] {
			t.Errorf("denial bodies differ:\n%s\n%s", bodies[0], bodies[i])
		}
	}
}
