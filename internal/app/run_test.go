package app

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRun_UnknownCommand_ReturnsError(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"unknown"}); err == nil {
		t.Fatal("Run with unknown command should return error")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	clearRequiredEnv(t)

	for _, args := range [][]string{{}, {"serve"}, {"worker"}, {"migrate"}, {"reset-user", "a@example.com"}} {
		t.Run(strings.Join(append([]string{"args"}, args...), " "), func(t *testing.T) {
			var buf bytes.Buffer
			err := Run(&buf, args)
			if err == nil {
				t.Fatal("Run with missing env should return error")
			}
			if !strings.Contains(err.Error(), "initialization failed") {
				t.Errorf("error = %v, want initialization failure", err)
			}
		})
	}
}

// TestRun_ServeCommand_FailsWithoutDatabase はserveがDBに接続できないときにエラーで終了することを検証する。
func TestRun_ServeCommand_FailsWithoutDatabase(t *testing.T) {
	setTestEnv(t)

	for _, args := range [][]string{{}, {"serve"}, {"worker"}} {
		var buf bytes.Buffer
		err := Run(&buf, args)
		if err == nil {
			t.Fatalf("Run(%v) should fail when the database is unreachable", args)
		}
		if !strings.Contains(err.Error(), "database") {
			t.Errorf("Run(%v) error = %v, want database error", args, err)
		}
	}
}

func TestRun_ArgumentValidation(t *testing.T) {
	setTestEnv(t)

	tests := []struct {
		name string
		args []string
	}{
		{"importはファイル必須", []string{"import"}},
		{"reset-userはメール必須", []string{"reset-user"}},
		{"feed-linkはスラッグ必須", []string{"feed-link", "a@example.com"}},
		{"validateは対象必須", []string{"validate"}},
		{"serveは引数を取らない", []string{"serve", "extra"}},
		{"migrateの不明なアクション", []string{"migrate", "sideways"}},
		{"migrate downの不正な件数", []string{"migrate", "down", "zero"}},
		{"migrate upは件数を取らない", []string{"migrate", "up", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := Run(&buf, tt.args); err == nil {
				t.Errorf("Run(%v) should return error", tt.args)
			}
		})
	}
}

func TestRun_Healthcheck(t *testing.T) {
	clearRequiredEnv(t)

	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"200なら成功", http.StatusOK, false},
		{"503なら失敗", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					http.NotFound(w, r)
					return
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			u, err := url.Parse(srv.URL)
			if err != nil {
				t.Fatal(err)
			}
			t.Setenv("SERVER_PORT", u.Port())

			var buf bytes.Buffer
			err = Run(&buf, []string{"healthcheck"})
			if (err != nil) != tt.wantErr {
				t.Errorf("Run(healthcheck) error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRun_Validate_File(t *testing.T) {
	clearRequiredEnv(t)

	tests := []struct {
		name    string
		feed    string
		wantErr bool
		want    string
	}{
		{
			name:    "正しいフィード",
			feed:    validFeedXML,
			wantErr: false,
			want:    "Episode feed",
		},
		{
			name:    "GUID重複",
			feed:    duplicateGUIDFeedXML,
			wantErr: true,
			want:    "guid-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "feed.xml")
			if err := os.WriteFile(path, []byte(tt.feed), 0o600); err != nil {
				t.Fatal(err)
			}

			var buf bytes.Buffer
			err := Run(&buf, []string{"validate", path})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run(validate) error = %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output should contain %q, got:\n%s", tt.want, buf.String())
			}
		})
	}
}

func TestRun_Validate_URL(t *testing.T) {
	clearRequiredEnv(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		_, _ = w.Write([]byte(validFeedXML))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	if err := Run(&buf, []string{"validate", srv.URL + "/podcast/rss/"}); err != nil {
		t.Fatalf("Run(validate url) error = %v\n%s", err, buf.String())
	}
	if !strings.Contains(buf.String(), "Episode feed") {
		t.Errorf("output should contain the feed title, got:\n%s", buf.String())
	}
}

func TestRun_Validate_MissingFile(t *testing.T) {
	clearRequiredEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"validate", filepath.Join(t.TempDir(), "missing.xml")}); err == nil {
		t.Fatal("Run(validate) with missing file should return error")
	}
}

const validFeedXML = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0">
<channel>
<title>Episode feed</title>
<link>https://example.com/podcast/</link>
<description>d</description>
<item><title>One</title><guid isPermaLink="false">guid-1</guid><enclosure url="https://example.com/1.mp3" length="10" type="audio/mpeg"/></item>
<item><title>Two</title><guid isPermaLink="false">guid-2</guid></item>
</channel>
</rss>`

const duplicateGUIDFeedXML = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0">
<channel>
<title>Episode feed</title>
<link>https://example.com/podcast/</link>
<description>d</description>
<item><title>One</title><guid isPermaLink="false">guid-1</guid></item>
<item><title>One again</title><guid isPermaLink="false">guid-1</guid></item>
</channel>
</rss>`
