// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/rentfree/internal/model"
)

// ErrUserNotFound は対象ユーザーが存在しないことを示す。
var ErrUserNotFound = errors.New("user not found")

// IdentityRotator はUUIDのローテーションインターフェース。
// 実装はUUIDの差し替え・リセット回数の加算・ダウンロード記録の削除を1トランザクションで行う。
type IdentityRotator interface {
	RotateIdentity(ctx context.Context, email string, newUUID uuid.UUID) (*model.User, error)
}

// Service はユーザー管理のサービス層。
type Service struct {
	users   IdentityRotator
	newUUID func() uuid.UUID
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(users IdentityRotator) *Service {
	return &Service{
		users:   users,
		newUUID: uuid.New,
	}
}

// Reset はユーザーの署名用識別子をリセットする。
// UUIDとdownload_reset_counterがトークンに含まれるため、発行済みのプレミアムリンクはすべて無効になる。
func (s *Service) Reset(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("メールアドレスが空です: %w", ErrUserNotFound)
	}

	slog.Info("ユーザーのリセットを開始します",
		slog.String("email", email),
	)

	user, err := s.users.RotateIdentity(ctx, email, s.newUUID())
	if err != nil {
		return nil, fmt.Errorf("ユーザーのリセットに失敗しました: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}

	slog.Info("ユーザーのリセットが完了しました",
		slog.Int64("user_id", user.ID),
		slog.Int("download_reset_counter", user.DownloadResetCounter),
	)

	return user, nil
}
