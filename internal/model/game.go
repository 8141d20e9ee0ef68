package model

import "time"

// Player はchess.comの対局記録に含まれる片側のプレイヤー情報。
type Player struct {
	Username string `json:"username"`
	Rating   int    `json:"rating"`
	Result   string `json:"result"`
	UUID     string `json:"uuid"`
	ID       string `json:"@id"`
}

// Game はchess.comの月別アーカイブから取得した対局記録。
// 取得後は不変として扱う。
type Game struct {
	URL         string `json:"url"`
	PGN         string `json:"pgn,omitempty"`
	TimeControl string `json:"time_control"`
	EndTime     int64  `json:"end_time"`
	Rated       bool   `json:"rated"`
	UUID        string `json:"uuid,omitempty"`
	TimeClass   string `json:"time_class"`
	White       Player `json:"white"`
	Black       Player `json:"black"`
}

// CalendarEvent は対局から導出したカレンダーイベント。
// Start/Endはエポックミリ秒で、常に Start <= End を満たす。
type CalendarEvent struct {
	UID         string
	Start       int64
	End         int64
	Title       string
	Description string
	URL         string
}

// StartTime はStartをtime.Time（UTC）で返す。
func (e CalendarEvent) StartTime() time.Time {
	return time.UnixMilli(e.Start).UTC()
}

// EndTime はEndをtime.Time（UTC）で返す。
func (e CalendarEvent) EndTime() time.Time {
	return time.UnixMilli(e.End).UTC()
}

// Subscription は購読者とフォロー対象のchess.comユーザー名の組。
// (SubscriberID, ChessUsername) で一意。
type Subscription struct {
	SubscriberID  string
	ChessUsername string
	CreatedAt     time.Time
}
