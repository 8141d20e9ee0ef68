// Package gcal はGoogle Calendar APIのうち、同期に必要な最小限の操作を提供する。
package gcal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/hitoshi/gambit/internal/model"
)

const (
	// DefaultBaseURL はGoogle Calendar API v3のエンドポイント。
	DefaultBaseURL = "https://www.googleapis.com/calendar/v3"
	// maxErrorBody はエラーレスポンスから読み取る最大バイト数。
	maxErrorBody = 4 << 10
)

// ErrCalendarNotFound は同期先カレンダーが削除済み、またはアクセスできないことを示す。
var ErrCalendarNotFound = errors.New("calendar not found")

// APIError はCalendar APIがエラーステータスを返したことを表す。
type APIError struct {
	StatusCode int
	Body       string
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("calendar api returned status %d: %s", e.StatusCode, e.Body)
}

// Client はGoogle Calendar APIのクライアント。
// httpClientにはOAuthトークン付きのクライアント（oauth2.Config.Client）を渡す。
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient はClientを生成する。baseURLが空の場合はDefaultBaseURLを使用する。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

type calendarResource struct {
	ID       string `json:"id,omitempty"`
	Summary  string `json:"summary"`
	TimeZone string `json:"timeZone,omitempty"`
}

// CreateCalendar はセカンダリカレンダーを作成し、そのIDを返す。
func (c *Client) CreateCalendar(ctx context.Context, summary string) (string, error) {
	var created calendarResource
	err := c.call(ctx, http.MethodPost, "/calendars", calendarResource{Summary: summary, TimeZone: "UTC"}, &created)
	if err != nil {
		return "", fmt.Errorf("failed to create calendar: %w", err)
	}
	if created.ID == "" {
		return "", errors.New("calendar api returned an empty calendar id")
	}
	return created.ID, nil
}

// CalendarExists はカレンダーが存在し、アクセス可能かを返す。
func (c *Client) CalendarExists(ctx context.Context, calendarID string) (bool, error) {
	err := c.call(ctx, http.MethodGet, "/calendars/"+url.PathEscape(calendarID), nil, nil)
	if errors.Is(err, ErrCalendarNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get calendar: %w", err)
	}
	return true, nil
}

type eventTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type eventSource struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

type eventResource struct {
	ICalUID     string       `json:"iCalUID"`
	Summary     string       `json:"summary"`
	Description string       `json:"description"`
	Start       eventTime    `json:"start"`
	End         eventTime    `json:"end"`
	Source      *eventSource `json:"source,omitempty"`
}

// ImportEvent はイベントをiCalUIDをキーとしてインポートする。
// 同じiCalUIDのイベントが既にある場合はAPI側で上書きされるため、再実行しても重複しない。
func (c *Client) ImportEvent(ctx context.Context, calendarID string, event model.CalendarEvent) error {
	res := eventResource{
		ICalUID:     event.UID,
		Summary:     event.Title,
		Description: event.Description,
		Start:       eventTime{DateTime: event.StartTime().Format(time.RFC3339), TimeZone: "UTC"},
		End:         eventTime{DateTime: event.EndTime().Format(time.RFC3339), TimeZone: "UTC"},
	}
	if event.URL != "" {
		res.Source = &eventSource{Title: "chess.com", URL: event.URL}
	}

	path := "/calendars/" + url.PathEscape(calendarID) + "/events/import"
	if err := c.call(ctx, http.MethodPost, path, res, nil); err != nil {
		return fmt.Errorf("failed to import event %s: %w", event.UID, err)
	}
	return nil
}

// call はJSONリクエストを送信し、成功時はレスポンスをoutにデコードする。
// 404と410はErrCalendarNotFoundとして返す。
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		io.Copy(io.Discard, resp.Body)
		return ErrCalendarNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("calendar api returned error status",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
