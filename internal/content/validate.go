package content

import (
	"fmt"

	"github.com/hitoshi/rentfree/internal/model"
)

// Validate は保存前の不変条件を検証する。
//   - アップロードメディアとリモートメディアの同時設定は不可
//   - ダウンロード可能なリモートメディアには再生時間が必要
func Validate(item model.Item) error {
	c := item.Base()

	if c.HasUploadedMedia() && c.HasRemoteMedia() {
		return fmt.Errorf("コンテンツ %q: アップロードとリモートのメディアは同時に設定できません: %w",
			c.Slug, model.ErrMalformedContent)
	}

	if c.HasRemoteMedia() && c.RemoteMediaDuration <= 0 && !model.IsStreamingOnly(c.RemoteMediaType) {
		return fmt.Errorf("コンテンツ %q: リモートメディアには有効な再生時間が必要です: %w",
			c.Slug, model.ErrMalformedContent)
	}

	return nil
}

// Derive は保存時の派生値を設定する。
// 使用していない側のメディア属性はクリアする。
func Derive(item model.Item) {
	c := item.Base()

	switch {
	case c.HasUploadedMedia():
		c.UploadedMediaType = DeriveUploadedMediaType(c.UploadedMedia.FileName, c.UploadedMediaKind)
		c.RemoteMediaURL = ""
		c.RemoteMediaType = ""
		c.RemoteMediaSize = 0
		c.RemoteMediaDuration = 0
	case c.HasRemoteMedia():
		c.UploadedMediaKind = ""
		c.UploadedMediaType = ""
	}
}
