package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gambit/internal/middleware"
	"github.com/hitoshi/gambit/internal/model"
)

// GameFeedServiceInterface は対局フィードハンドラーが必要とするサービスインターフェース。
// *gamefeed.Service が実装する。
type GameFeedServiceInterface interface {
	Games(ctx context.Context, username string) ([]model.Game, error)
	Calendar(ctx context.Context, username string) ([]byte, error)
}

// CalendarHandler は対局履歴の公開エンドポイント。認証不要。
type CalendarHandler struct {
	service GameFeedServiceInterface
}

// NewCalendarHandler はCalendarHandlerを生成する。
func NewCalendarHandler(service GameFeedServiceInterface) *CalendarHandler {
	return &CalendarHandler{service: service}
}

type gamesResponse struct {
	Username string       `json:"username"`
	Games    []model.Game `json:"games"`
}

// Calendar はユーザーの対局履歴をiCalendar形式で返す。
// GET /games/{username}/calendar.ics
func (h *CalendarHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameParam(w, r)
	if !ok {
		return
	}

	doc, err := h.service.Calendar(r.Context(), username)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-games.ics"`, sanitizeFilename(username)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(doc); err != nil {
		slog.Warn("failed to write calendar",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
	}
}

// Games はユーザーの対局履歴をJSONで返す。
// GET /games/{username}
func (h *CalendarHandler) Games(w http.ResponseWriter, r *http.Request) {
	username, ok := usernameParam(w, r)
	if !ok {
		return
	}

	games, err := h.service.Games(r.Context(), username)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if games == nil {
		games = []model.Game{}
	}

	middleware.WriteJSON(w, http.StatusOK, gamesResponse{Username: username, Games: games})
}

func usernameParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	username := strings.TrimSpace(chi.URLParam(r, "username"))
	if username == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.ErrUsernameRequired)
		return "", false
	}
	return username, true
}

// sanitizeFilename はContent-Dispositionのファイル名に使えない文字を取り除く。
func sanitizeFilename(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '"' || r == '\\' || r == '/' || r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, name)
}
