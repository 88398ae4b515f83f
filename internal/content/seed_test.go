package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/hitoshi/rentfree/internal/model"
)

// --- テスト用モック ---

type memIndexRepo struct {
	pages  []*model.IndexPage
	nextID int64
}

func (m *memIndexRepo) FindBySlug(_ context.Context, slug string) (*model.IndexPage, error) {
	for _, p := range m.pages {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, nil
}

func (m *memIndexRepo) Save(_ context.Context, p *model.IndexPage) error {
	m.nextID++
	p.ID = m.nextID
	m.pages = append(m.pages, p)
	return nil
}

type memMediaRepo struct {
	media  []*model.Media
	nextID int64
}

func (m *memMediaRepo) FindByID(_ context.Context, id int64) (*model.Media, error) {
	for _, md := range m.media {
		if md.ID == id {
			return md, nil
		}
	}
	return nil, nil
}

func (m *memMediaRepo) Save(_ context.Context, md *model.Media) error {
	m.nextID++
	md.ID = m.nextID
	m.media = append(m.media, md)
	return nil
}

type memSegmentRepo struct {
	segments []*model.Segment
	rules    []*model.TierRule
	variants []model.Variant
}

func (m *memSegmentRepo) ListTierRules(context.Context) ([]model.TierRule, error) {
	out := make([]model.TierRule, len(m.rules))
	for i, r := range m.rules {
		out[i] = *r
	}
	return out, nil
}

func (m *memSegmentRepo) ListVariantsBySegments(context.Context, []int64) ([]model.Variant, error) {
	return m.variants, nil
}

func (m *memSegmentRepo) SaveSegment(_ context.Context, s *model.Segment) error {
	s.ID = int64(len(m.segments) + 1)
	m.segments = append(m.segments, s)
	return nil
}

func (m *memSegmentRepo) SaveTierRule(_ context.Context, r *model.TierRule) error {
	r.ID = int64(len(m.rules) + 1)
	m.rules = append(m.rules, r)
	return nil
}

func (m *memSegmentRepo) SaveVariant(_ context.Context, v model.Variant) error {
	m.variants = append(m.variants, v)
	return nil
}

type memUserRepo struct {
	users []*model.User
}

func (m *memUserRepo) FindByID(context.Context, int64) (*model.User, error)     { return nil, nil }
func (m *memUserRepo) FindByEmail(context.Context, string) (*model.User, error) { return nil, nil }

func (m *memUserRepo) Save(_ context.Context, u *model.User) error {
	u.ID = int64(len(m.users) + 1)
	m.users = append(m.users, u)
	return nil
}

func (m *memUserRepo) UpdateSubscription(context.Context, string, *int, model.SubscriptionStatus, string) (bool, error) {
	return false, nil
}

func (m *memUserRepo) RotateIdentity(context.Context, string, uuid.UUID) (*model.User, error) {
	return nil, nil
}

type recordingSaver struct {
	saved  []model.Item
	nextID int64
	err    error
}

func (s *recordingSaver) Save(_ context.Context, item model.Item) error {
	if s.err != nil {
		return s.err
	}
	s.nextID++
	item.Base().ID = s.nextID
	s.saved = append(s.saved, item)
	return nil
}

const seedJSON = `{
  "index_pages": [
    {"slug": "show", "kind": "podcast_episode", "title": "The Show", "rss_ttl": "1:00", "itunes_primary_category": "True Crime"}
  ],
  "media": [
    {"title": "Ep1 audio", "file_name": "ep1.mp3", "url": "https://storage.example.com/ep1.mp3", "size": 2048, "duration": "10:00"}
  ],
  "segments": [
    {"name": "patrons", "rules": [{"kind": "at_least", "threshold": 2}]}
  ],
  "users": [
    {"email": "fan@example.com", "user_name": "fan", "subscription_tier": 2, "subscription_status": "active"}
  ],
  "items": [
    {"index": "show", "kind": "podcast_episode", "title": "Patron cut", "slug": "ep1-patron", "variant_of": "ep1", "segment": "patrons",
     "publish_date": "2024-01-02T00:00:00Z", "live": true, "uploaded_media": "ep1.mp3"},
    {"index": "show", "kind": "podcast_episode", "title": "Episode 1", "slug": "ep1", "guid": "g-1",
     "publish_date": "2024-01-02T00:00:00Z", "live": true, "remote_media_url": "https://cdn.example.com/ep1.mp3",
     "remote_media_type": "audio/mpeg", "remote_media_duration": "1:30", "episode_number": 1}
  ]
}`

func TestImporter_Import(t *testing.T) {
	seed, err := DecodeSeed(strings.NewReader(seedJSON))
	if err != nil {
		t.Fatalf("DecodeSeed: %v", err)
	}

	indexes := &memIndexRepo{}
	segments := &memSegmentRepo{}
	users := &memUserRepo{}
	saver := &recordingSaver{}
	im := NewImporter(indexes, &memMediaRepo{}, segments, users, saver, nil)

	sum, err := im.Import(context.Background(), seed)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	want := ImportSummary{IndexPages: 1, Media: 1, Segments: 1, TierRules: 1, Users: 1, Items: 2, Variants: 1}
	if sum != want {
		t.Errorf("summary = %+v, want %+v", sum, want)
	}

	t.Run("TTLは分に正規化", func(t *testing.T) {
		if ttl := indexes.pages[0].RSSTTL; ttl == nil || *ttl != 60 {
			t.Errorf("RSSTTL = %v, want 60", ttl)
		}
	})

	t.Run("カノニカルを先に保存", func(t *testing.T) {
		if saver.saved[0].Base().Slug != "ep1" {
			t.Errorf("first saved = %q, want ep1", saver.saved[0].Base().Slug)
		}
	})

	t.Run("再生時間は秒に正規化", func(t *testing.T) {
		if d := saver.saved[0].Base().RemoteMediaDuration; d != 90 {
			t.Errorf("RemoteMediaDuration = %d, want 90", d)
		}
	})

	t.Run("バリアント対応を登録", func(t *testing.T) {
		if len(segments.variants) != 1 {
			t.Fatalf("variants = %d, want 1", len(segments.variants))
		}
		v := segments.variants[0]
		if v.VariantID != 2 || v.CanonicalID != 1 || v.SegmentID != 1 {
			t.Errorf("variant = %+v", v)
		}
	})

	t.Run("アップロードメディアとGUIDを設定", func(t *testing.T) {
		variant := saver.saved[1].Base()
		if variant.UploadedMedia == nil || variant.UploadedMedia.FileName != "ep1.mp3" {
			t.Errorf("UploadedMedia = %+v", variant.UploadedMedia)
		}
		if variant.UploadedMediaKind != model.MediaKindAudio {
			t.Errorf("UploadedMediaKind = %q", variant.UploadedMediaKind)
		}
		if variant.GUID == "" {
			t.Error("GUID should be generated")
		}
	})

	t.Run("ユーザーにUUIDを払い出す", func(t *testing.T) {
		if users.users[0].UUID == uuid.Nil {
			t.Error("UUID should be set")
		}
	})
}

func TestImporter_Import_Errors(t *testing.T) {
	tests := []struct {
		name string
		seed Seed
	}{
		{
			name: "不明なインデックス種別",
			seed: Seed{IndexPages: []SeedIndexPage{{Slug: "x", Kind: "blog"}}},
		},
		{
			name: "不明なルール種別",
			seed: Seed{Segments: []SeedSegment{{Name: "s", Rules: []SeedTierRule{{Kind: "at_most"}}}}},
		},
		{
			name: "存在しないインデックス",
			seed: Seed{Items: []SeedItem{{Index: "missing", Kind: "article", Slug: "a"}}},
		},
		{
			name: "存在しないカノニカル",
			seed: Seed{
				IndexPages: []SeedIndexPage{{Slug: "x", Kind: "article"}},
				Segments:   []SeedSegment{{Name: "s"}},
				Items:      []SeedItem{{Index: "x", Kind: "article", Slug: "v", VariantOf: "nope", Segment: "s"}},
			},
		},
		{
			name: "不正な再生時間",
			seed: Seed{
				IndexPages: []SeedIndexPage{{Slug: "x", Kind: "podcast_episode"}},
				Items:      []SeedItem{{Index: "x", Kind: "podcast_episode", Slug: "a", RemoteMediaDuration: "a:b"}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := NewImporter(&memIndexRepo{}, &memMediaRepo{}, &memSegmentRepo{}, &memUserRepo{}, &recordingSaver{}, nil)
			if _, err := im.Import(context.Background(), &tt.seed); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Run("保存エラーを返す", func(t *testing.T) {
		saveErr := errors.New("boom")
		im := NewImporter(&memIndexRepo{}, &memMediaRepo{}, &memSegmentRepo{}, &memUserRepo{}, &recordingSaver{err: saveErr}, nil)
		seed := &Seed{
			IndexPages: []SeedIndexPage{{Slug: "x", Kind: "article"}},
			Items:      []SeedItem{{Index: "x", Kind: "article", Slug: "a"}},
		}
		if _, err := im.Import(context.Background(), seed); !errors.Is(err, saveErr) {
			t.Errorf("expected save error, got %v", err)
		}
	})
}

func TestDecodeSeed_UnknownField(t *testing.T) {
	if _, err := DecodeSeed(strings.NewReader(`{"pages": []}`)); err == nil {
		t.Error("expected error for unknown field")
	}
}
