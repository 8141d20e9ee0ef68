package chesscom

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/gambit/internal/model"
)

type resolverFunc func(ctx context.Context, username string) (*ArchiveIndex, error)

func (f resolverFunc) ResolveArchives(ctx context.Context, username string) (*ArchiveIndex, error) {
	return f(ctx, username)
}

func TestCheckUsername(t *testing.T) {
	transportErr := &model.TransportError{Username: "hikaru", Err: errors.New("connection refused")}

	tests := []struct {
		name     string
		raw      string
		index    *ArchiveIndex
		err      error
		want     string
		wantErr  error
		resolved bool
	}{
		{name: "found", raw: "MagnusCarlsen", index: &ArchiveIndex{Found: true}, want: "MagnusCarlsen", resolved: true},
		{name: "trimmed", raw: "  hikaru \n", index: &ArchiveIndex{Found: true}, want: "hikaru", resolved: true},
		{name: "blank", raw: "   ", wantErr: model.ErrUsernameRequired},
		{name: "empty", raw: "", wantErr: model.ErrUsernameRequired},
		{name: "too long", raw: strings.Repeat("a", 65), wantErr: model.ErrChessUserNotFound},
		{name: "not found", raw: "nobody", index: &ArchiveIndex{Found: false}, wantErr: model.ErrChessUserNotFound, resolved: true},
		{name: "transport", raw: "hikaru", err: transportErr, wantErr: transportErr, resolved: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			resolver := resolverFunc(func(_ context.Context, username string) (*ArchiveIndex, error) {
				called = true
				if username != strings.TrimSpace(tt.raw) {
					t.Errorf("resolved %q, want trimmed input", username)
				}
				return tt.index, tt.err
			})

			got, err := CheckUsername(context.Background(), resolver, tt.raw)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if called != tt.resolved {
				t.Errorf("resolver called = %v, want %v", called, tt.resolved)
			}
		})
	}
}
