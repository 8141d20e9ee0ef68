package gamefeed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/gambit/internal/calendar"
	"github.com/hitoshi/gambit/internal/metrics"
	"github.com/hitoshi/gambit/internal/model"
)

type mockFetcher struct {
	fetchFn func(ctx context.Context, username string) ([]model.Game, error)
}

func (m *mockFetcher) FetchAllGames(ctx context.Context, username string) ([]model.Game, error) {
	return m.fetchFn(ctx, username)
}

type encoderFunc func(name string, events []model.CalendarEvent) ([]byte, error)

func (f encoderFunc) Encode(name string, events []model.CalendarEvent) ([]byte, error) {
	return f(name, events)
}

type exportCounter struct {
	metrics.MetricsCollector
	outcomes []string
}

func (c *exportCounter) RecordCalendarExport(outcome string) {
	c.outcomes = append(c.outcomes, outcome)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func fixedEncoder() *calendar.Encoder {
	enc := calendar.NewEncoder()
	enc.Now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return enc
}

func sampleGames() []model.Game {
	return []model.Game{
		{
			URL:         "https://www.chess.com/game/live/1",
			EndTime:     1_000_600,
			TimeControl: "600",
			TimeClass:   "rapid",
			Rated:       true,
			White:       model.Player{Username: "MagnusCarlsen", Rating: 2850, Result: "win"},
			Black:       model.Player{Username: "Hikaru", Rating: 2800, Result: "checkmated"},
		},
		{
			URL:         "https://www.chess.com/game/live/2",
			EndTime:     1_001_600,
			TimeControl: "180+2",
			TimeClass:   "blitz",
			White:       model.Player{Username: "Hikaru", Rating: 2810, Result: "win"},
			Black:       model.Player{Username: "magnuscarlsen", Rating: 2840, Result: "resigned"},
		},
	}
}

func TestService_Calendar_MapsFromRequestedViewpoint(t *testing.T) {
	fetcher := &mockFetcher{fetchFn: func(_ context.Context, username string) ([]model.Game, error) {
		if username != "MagnusCarlsen" {
			t.Errorf("fetched %q", username)
		}
		return sampleGames(), nil
	}}
	counter := &exportCounter{MetricsCollector: metrics.Nop()}
	svc := NewService(fetcher, fixedEncoder(), counter, discardLogger())

	doc, err := svc.Calendar(context.Background(), "MagnusCarlsen")
	if err != nil {
		t.Fatalf("Calendar() error = %v", err)
	}

	events, err := calendar.Decode(bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if want := calendar.ToEvent(sampleGames()[0], "MagnusCarlsen"); events[0].Title != want.Title {
		t.Errorf("events[0].Title = %q, want %q", events[0].Title, want.Title)
	}
	// 2局目は黒番で負け
	if want := calendar.ToEvent(sampleGames()[1], "MagnusCarlsen"); events[1].Title != want.Title {
		t.Errorf("events[1].Title = %q, want %q", events[1].Title, want.Title)
	}
	if !strings.HasSuffix(events[1].Title, "❌") {
		t.Errorf("events[1].Title = %q, want loss marker", events[1].Title)
	}
	if len(counter.outcomes) != 1 || counter.outcomes[0] != outcomeOK {
		t.Errorf("outcomes = %v", counter.outcomes)
	}
}

func TestService_Calendar_EmptyHistoryYieldsEmptyCalendar(t *testing.T) {
	fetcher := &mockFetcher{fetchFn: func(context.Context, string) ([]model.Game, error) {
		return []model.Game{}, nil
	}}
	svc := NewService(fetcher, fixedEncoder(), nil, discardLogger())

	doc, err := svc.Calendar(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Calendar() error = %v", err)
	}
	if !bytes.Contains(doc, []byte("BEGIN:VCALENDAR")) || !bytes.Contains(doc, []byte("END:VCALENDAR")) {
		t.Errorf("expected a VCALENDAR document, got %q", doc)
	}
	if bytes.Contains(doc, []byte("BEGIN:VEVENT")) {
		t.Error("empty history should produce no events")
	}
}

func TestService_Calendar_TransportErrorPropagates(t *testing.T) {
	transportErr := &model.TransportError{Username: "hikaru", StatusCode: 503}
	fetcher := &mockFetcher{fetchFn: func(context.Context, string) ([]model.Game, error) {
		return nil, transportErr
	}}
	encoderCalled := false
	enc := encoderFunc(func(string, []model.CalendarEvent) ([]byte, error) {
		encoderCalled = true
		return nil, nil
	})
	counter := &exportCounter{MetricsCollector: metrics.Nop()}
	svc := NewService(fetcher, enc, counter, discardLogger())

	_, err := svc.Calendar(context.Background(), "hikaru")
	if !errors.Is(err, transportErr) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if encoderCalled {
		t.Error("encoder should not run when aggregation fails")
	}
	if len(counter.outcomes) != 1 || counter.outcomes[0] != outcomeUpstream {
		t.Errorf("outcomes = %v", counter.outcomes)
	}
}

func TestService_Calendar_EncoderFailureIsEncodingError(t *testing.T) {
	fetcher := &mockFetcher{fetchFn: func(context.Context, string) ([]model.Game, error) {
		return sampleGames(), nil
	}}
	cause := errors.New("boom")
	enc := encoderFunc(func(string, []model.CalendarEvent) ([]byte, error) {
		return nil, cause
	})
	counter := &exportCounter{MetricsCollector: metrics.Nop()}
	svc := NewService(fetcher, enc, counter, discardLogger())

	_, err := svc.Calendar(context.Background(), "hikaru")
	var encErr *model.EncodingError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected EncodingError, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("EncodingError should wrap the encoder failure")
	}
	if len(counter.outcomes) != 1 || counter.outcomes[0] != outcomeEncoding {
		t.Errorf("outcomes = %v", counter.outcomes)
	}
}

func TestService_Games_ReturnsAggregatedGames(t *testing.T) {
	fetcher := &mockFetcher{fetchFn: func(context.Context, string) ([]model.Game, error) {
		return sampleGames(), nil
	}}
	svc := NewService(fetcher, fixedEncoder(), nil, discardLogger())

	games, err := svc.Games(context.Background(), "hikaru")
	if err != nil {
		t.Fatalf("Games() error = %v", err)
	}
	if len(games) != 2 || games[0].URL != "https://www.chess.com/game/live/1" {
		t.Errorf("games = %+v", games)
	}
}
