package download

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentfree/internal/model"
	"github.com/hitoshi/rentfree/internal/token"
)

// --- テスト用モック ---

type mockMedia struct {
	media map[int64]*model.Media
	err   error
}

func (m *mockMedia) FindByID(_ context.Context, id int64) (*model.Media, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.media[id], nil
}

type mockUsers struct {
	users map[string]*model.User
	err   error
}

func (m *mockUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.users[email], nil
}

// memoryCounter は(user, media)単位のカウンタ。排他制御付き。
type memoryCounter struct {
	mu     sync.Mutex
	counts map[[2]int64]int64
	err    error
}

func (c *memoryCounter) Increment(_ context.Context, userID, mediaID int64, _ time.Time) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[[2]int64]int64{}
	}
	key := [2]int64{userID, mediaID}
	c.counts[key]++
	return c.counts[key], nil
}

func intPtr(n int) *int { return &n }

type fixture struct {
	svc     *Service
	users   *mockUsers
	media   *mockMedia
	counter *memoryCounter
	signer  *token.Signer
	user    *model.User
}

func newFixture() *fixture {
	user := &model.User{
		ID:                 5,
		Email:              "fan@example.com",
		UUID:               uuid.New(),
		SubscriptionTier:   intPtr(1),
		SubscriptionStatus: model.StatusActive,
	}
	f := &fixture{
		users: &mockUsers{users: map[string]*model.User{user.Email: user}},
		media: &mockMedia{media: map[int64]*model.Media{
			42: {ID: 42, FileName: "ep.mp3", URL: "https://storage.example.com/private/ep.mp3"},
		}},
		counter: &memoryCounter{},
		signer:  token.NewSigner("secret", 0),
		user:    user,
	}
	f.svc = NewService(f.media, f.users, f.counter, f.signer, "", nil, nil)
	return f
}

func TestService_Authorize(t *testing.T) {
	ctx := context.Background()

	t.Run("成功時は回数を加算してリダイレクト先を返す", func(t *testing.T) {
		f := newFixture()
		uid := token.EncodeUID(f.user.Email)
		tok := f.signer.Sign(f.user)

		g, err := f.svc.Authorize(ctx, uid, "42", tok, "ep.mp3")
		if err != nil {
			t.Fatalf("Authorize: %v", err)
		}
		if g.RedirectPath != "/media_download/https/storage.example.com/private/ep.mp3" {
			t.Errorf("RedirectPath = %q", g.RedirectPath)
		}
		if g.Count != 1 {
			t.Errorf("Count = %d, want 1", g.Count)
		}

		g, _ = f.svc.Authorize(ctx, uid, "42", tok, "ep.mp3")
		if g.Count != 2 {
			t.Errorf("Count = %d, want 2", g.Count)
		}
	})

	t.Run("プレフィックスを設定できる", func(t *testing.T) {
		f := newFixture()
		svc := NewService(f.media, f.users, f.counter, f.signer, "/protected", nil, nil)
		g, err := svc.Authorize(ctx, token.EncodeUID(f.user.Email), "42", f.signer.Sign(f.user), "ep.mp3")
		if err != nil {
			t.Fatalf("Authorize: %v", err)
		}
		if g.RedirectPath != "/protected/https/storage.example.com/private/ep.mp3" {
			t.Errorf("RedirectPath = %q", g.RedirectPath)
		}
	})

	t.Run("無料階層でもactiveならダウンロード可能", func(t *testing.T) {
		f := newFixture()
		f.user.SubscriptionTier = intPtr(0)
		if _, err := f.svc.Authorize(ctx, token.EncodeUID(f.user.Email), "42", f.signer.Sign(f.user), "ep.mp3"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	notFound := []struct {
		name     string
		fileID   string
		fileName string
	}{
		{"IDが数値でない", "abc", "ep.mp3"},
		{"存在しないID", "999", "ep.mp3"},
		{"ファイル名の不一致", "42", "other.mp3"},
	}
	for _, tt := range notFound {
		t.Run("404/"+tt.name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Authorize(ctx, token.EncodeUID(f.user.Email), tt.fileID, f.signer.Sign(f.user), tt.fileName)
			if !errors.Is(err, model.ErrMediaNotFound) {
				t.Errorf("expected ErrMediaNotFound, got %v", err)
			}
		})
	}

	t.Run("404はアクセス検査より先", func(t *testing.T) {
		f := newFixture()
		_, err := f.svc.Authorize(ctx, "***", "999", "bad", "ep.mp3")
		if !errors.Is(err, model.ErrMediaNotFound) {
			t.Errorf("expected ErrMediaNotFound, got %v", err)
		}
	})

	denials := []struct {
		name  string
		setup func(f *fixture) (uid, tok string)
	}{
		{"uidb64が不正", func(f *fixture) (string, string) { return "***", f.signer.Sign(f.user) }},
		{"ユーザーなし", func(f *fixture) (string, string) {
			return token.EncodeUID("ghost@example.com"), f.signer.Sign(f.user)
		}},
		{"トークン不正", func(f *fixture) (string, string) { return token.EncodeUID(f.user.Email), "abc-123" }},
		{"リセット済み", func(f *fixture) (string, string) {
			tok := f.signer.Sign(f.user)
			f.user.DownloadResetCounter++
			return token.EncodeUID(f.user.Email), tok
		}},
		{"購読がcanceled", func(f *fixture) (string, string) {
			f.user.SubscriptionStatus = model.StatusCanceled
			return token.EncodeUID(f.user.Email), f.signer.Sign(f.user)
		}},
	}
	for _, tt := range denials {
		t.Run("403/"+tt.name, func(t *testing.T) {
			f := newFixture()
			uid, tok := tt.setup(f)
			_, err := f.svc.Authorize(ctx, uid, "42", tok, "ep.mp3")
			if !errors.Is(err, model.ErrAccessDenied) {
				t.Fatalf("expected ErrAccessDenied, got %v", err)
			}
			if len(f.counter.counts) != 0 {
				t.Error("counter must not be incremented on denial")
			}
		})
	}

	t.Run("カウンタの失敗はエラー", func(t *testing.T) {
		f := newFixture()
		f.counter.err = errors.New("db down")
		_, err := f.svc.Authorize(ctx, token.EncodeUID(f.user.Email), "42", f.signer.Sign(f.user), "ep.mp3")
		if err == nil || errors.Is(err, model.ErrAccessDenied) {
			t.Errorf("expected storage error, got %v", err)
		}
	})

	t.Run("並行ダウンロードで回数を失わない", func(t *testing.T) {
		f := newFixture()
		uid := token.EncodeUID(f.user.Email)
		tok := f.signer.Sign(f.user)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := f.svc.Authorize(ctx, uid, "42", tok, "ep.mp3"); err != nil {
					t.Errorf("Authorize: %v", err)
				}
			}()
		}
		wg.Wait()

		if got := f.counter.counts[[2]int64{5, 42}]; got != 20 {
			t.Errorf("count = %d, want 20", got)
		}
	})
}
