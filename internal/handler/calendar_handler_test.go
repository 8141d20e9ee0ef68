package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/gambit/internal/model"
)

type mockGameFeedService struct {
	gamesFn    func(ctx context.Context, username string) ([]model.Game, error)
	calendarFn func(ctx context.Context, username string) ([]byte, error)
}

func (m *mockGameFeedService) Games(ctx context.Context, username string) ([]model.Game, error) {
	return m.gamesFn(ctx, username)
}

func (m *mockGameFeedService) Calendar(ctx context.Context, username string) ([]byte, error) {
	return m.calendarFn(ctx, username)
}

// serveCalendar はURLパラメータ解決のためにchiルーター経由で呼び出す。
func serveCalendar(h *CalendarHandler, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Get("/games/{username}", h.Games)
	r.Get("/games/{username}/calendar.ics", h.Calendar)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestCalendarHandler_Calendar_Success(t *testing.T) {
	doc := []byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")
	var gotUsername string
	h := NewCalendarHandler(&mockGameFeedService{
		calendarFn: func(ctx context.Context, username string) ([]byte, error) {
			gotUsername = username
			return doc, nil
		},
	})

	w := serveCalendar(h, "/games/Hikaru/calendar.ics")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotUsername != "Hikaru" {
		t.Errorf("username = %q", gotUsername)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != `attachment; filename="Hikaru-games.ics"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if w.Body.String() != string(doc) {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestCalendarHandler_Calendar_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"upstream failure", &model.TransportError{Username: "Hikaru", StatusCode: 500}, http.StatusBadGateway, model.NewUpstreamFailedError().Message},
		{"wrapped upstream failure", errors.Join(errors.New("aggregate"), &model.TransportError{Username: "Hikaru"}), http.StatusBadGateway, model.NewUpstreamFailedError().Message},
		{"encoding failure", &model.EncodingError{Reason: "bad event"}, http.StatusInternalServerError, model.NewEncodingFailedError().Message},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCalendarHandler(&mockGameFeedService{
				calendarFn: func(ctx context.Context, username string) ([]byte, error) {
					return nil, tt.err
				},
			})

			w := serveCalendar(h, "/games/Hikaru/calendar.ics")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			if got := decodeErrorBody(t, w); got != tt.wantError {
				t.Errorf("error = %q, want %q", got, tt.wantError)
			}
		})
	}
}

func TestCalendarHandler_Games_ReturnsJSON(t *testing.T) {
	h := NewCalendarHandler(&mockGameFeedService{
		gamesFn: func(ctx context.Context, username string) ([]model.Game, error) {
			return []model.Game{{URL: "https://www.chess.com/game/live/1", EndTime: 1700000000, TimeControl: "600"}}, nil
		},
	})

	w := serveCalendar(h, "/games/Hikaru")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Username string       `json:"username"`
		Games    []model.Game `json:"games"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Username != "Hikaru" || len(body.Games) != 1 || body.Games[0].EndTime != 1700000000 {
		t.Errorf("body = %+v", body)
	}
}

func TestCalendarHandler_Games_UnknownUserIsEmptyArray(t *testing.T) {
	h := NewCalendarHandler(&mockGameFeedService{
		gamesFn: func(ctx context.Context, username string) ([]model.Game, error) {
			return nil, nil
		},
	})

	w := serveCalendar(h, "/games/nobody")

	if !strings.Contains(w.Body.String(), `"games":[]`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestCalendarHandler_BlankUsername(t *testing.T) {
	h := NewCalendarHandler(&mockGameFeedService{})

	w := serveCalendar(h, "/games/%20/calendar.ics")

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if got := decodeErrorBody(t, w); got != "Username required" {
		t.Errorf("error = %q", got)
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := sanitizeFilename(`a"b\c/d` + "\n"); got != "abcd" {
		t.Errorf("sanitizeFilename() = %q, want %q", got, "abcd")
	}
	if got := sanitizeFilename("Magnus_Carlsen-1"); got != "Magnus_Carlsen-1" {
		t.Errorf("sanitizeFilename() = %q", got)
	}
}
