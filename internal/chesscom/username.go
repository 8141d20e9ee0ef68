package chesscom

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/gambit/internal/model"
)

// ArchiveResolver はユーザー名からアーカイブ一覧を解決する。
type ArchiveResolver interface {
	ResolveArchives(ctx context.Context, username string) (*ArchiveIndex, error)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

type usernameInput struct {
	Username string `validate:"required,max=64"`
}

// CheckUsername は入力されたユーザー名を正規化し、chess.com上に存在することを確認する。
// 前後の空白を除去した結果が空ならmodel.ErrUsernameRequired、
// 存在しないユーザーならmodel.ErrChessUserNotFoundを返す。通信失敗はそのまま返す。
// 大文字小文字は入力のまま保持する。
func CheckUsername(ctx context.Context, resolver ArchiveResolver, raw string) (string, error) {
	in := usernameInput{Username: strings.TrimSpace(raw)}
	if err := getValidator().Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Tag() == "required" {
			return "", model.ErrUsernameRequired
		}
		// chess.comのユーザー名として成立しない長さ
		return "", model.ErrChessUserNotFound
	}

	index, err := resolver.ResolveArchives(ctx, in.Username)
	if err != nil {
		return "", err
	}
	if !index.Found {
		return "", model.ErrChessUserNotFound
	}
	return in.Username, nil
}
