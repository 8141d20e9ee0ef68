// Package calendar は対局記録からカレンダーイベントを導出し、iCalendar形式で入出力する。
package calendar

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/hitoshi/gambit/internal/model"
)

const (
	// defaultDurationSeconds はtime_controlから所要時間を読み取れない場合の既定値（10分）。
	defaultDurationSeconds = 600

	markerWin  = "👑"
	markerLoss = "❌"

	uidDomain = "gambit"
)

// ToEvent は対局をviewpointのユーザーから見たカレンダーイベントに変換する。
// 純粋関数であり、同じ入力に対して常に同じ結果を返す。
func ToEvent(game model.Game, viewpoint string) model.CalendarEvent {
	result := game.Black.Result
	if strings.EqualFold(game.White.Username, viewpoint) {
		result = game.White.Result
	}
	marker := markerLoss
	if result == "win" {
		marker = markerWin
	}

	timeClass := capitalize(game.TimeClass)

	end := game.EndTime * 1000
	start := (game.EndTime - parseDurationSeconds(game.TimeControl)) * 1000
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}

	rated := "No"
	if game.Rated {
		rated = "Yes"
	}

	description := strings.Join([]string{
		fmt.Sprintf("Type: %s (%s)", timeClass, game.TimeControl),
		"Rated: " + rated,
		fmt.Sprintf("White: %s (%d) - %s", game.White.Username, game.White.Rating, capitalize(game.White.Result)),
		fmt.Sprintf("Black: %s (%d) - %s", game.Black.Username, game.Black.Rating, capitalize(game.Black.Result)),
		"",
		game.URL,
	}, "\n")

	return model.CalendarEvent{
		UID:         eventUID(game),
		Start:       start,
		End:         end,
		Title:       fmt.Sprintf("♟️ %s vs %s - %s %s", game.White.Username, game.Black.Username, timeClass, marker),
		Description: description,
		URL:         game.URL,
	}
}

// ToEvents はgamesを順にToEventで変換する。
func ToEvents(games []model.Game, viewpoint string) []model.CalendarEvent {
	events := make([]model.CalendarEvent, 0, len(games))
	for _, g := range games {
		events = append(events, ToEvent(g, viewpoint))
	}
	return events
}

// parseDurationSeconds はtime_controlの先頭の10進数字列を秒数として読む。
// "180+2" は180、"1/259200" は1になる。数字がない、0、桁あふれの場合は既定値を返す。
func parseDurationSeconds(timeControl string) int64 {
	s := strings.TrimLeftFunc(timeControl, unicode.IsSpace)
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	if n == 0 {
		return defaultDurationSeconds
	}
	v, err := strconv.ParseInt(s[:n], 10, 64)
	if err != nil || v <= 0 {
		return defaultDurationSeconds
	}
	// end_time*1000 の計算であふれない範囲に収める
	if v > (1<<62)/1000 {
		return defaultDurationSeconds
	}
	return v
}

// capitalize は先頭の1文字だけを大文字にする。残りはそのまま。
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// eventUID は対局URLから安定したUIDを導出する。
// 同じ対局は何度変換しても同じUIDになり、カレンダー側で重複しない。
func eventUID(game model.Game) string {
	if u, err := url.Parse(game.URL); err == nil && u.Host != "" {
		path := strings.Trim(u.Path, "/")
		host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
		return strings.ReplaceAll(host+"/"+path, "/", "-") + "@" + uidDomain
	}
	if game.UUID != "" {
		return game.UUID + "@" + uidDomain
	}
	return fmt.Sprintf("%d-%s-%s@%s", game.EndTime, strings.ToLower(game.White.Username), strings.ToLower(game.Black.Username), uidDomain)
}
