package calendar

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/hitoshi/gambit/internal/model"
)

const defaultProductID = "-//gambit//chess games//EN"

// Encoder はカレンダーイベントをiCalendar文書に変換する。
type Encoder struct {
	ProductID string
	// Now はDTSTAMPに使う時刻を返す。nilの場合はtime.Now。
	Now func() time.Time
}

// NewEncoder は既定設定のEncoderを生成する。
func NewEncoder() *Encoder {
	return &Encoder{ProductID: defaultProductID, Now: time.Now}
}

// Encode はeventsを1つのVCALENDAR文書に変換する。
// eventsが空でも有効な空のカレンダーを返す。
// UIDが空、またはStart > Endのイベントが含まれる場合は *model.EncodingError を返す。
func (e *Encoder) Encode(name string, events []model.CalendarEvent) ([]byte, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	stamp := now().UTC()

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(e.ProductID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for i, ev := range events {
		if ev.UID == "" {
			return nil, &model.EncodingError{Reason: fmt.Sprintf("event %d has no UID", i)}
		}
		if ev.Start > ev.End {
			return nil, &model.EncodingError{Reason: fmt.Sprintf("event %s starts after it ends", ev.UID)}
		}

		vevent := cal.AddEvent(ev.UID)
		vevent.SetDtStampTime(stamp)
		vevent.SetStartAt(ev.StartTime())
		vevent.SetEndAt(ev.EndTime())
		vevent.SetSummary(ev.Title)
		vevent.SetDescription(ev.Description)
		if ev.URL != "" {
			vevent.SetURL(ev.URL)
		}
	}

	var buf bytes.Buffer
	if err := cal.SerializeTo(&buf); err != nil {
		return nil, &model.EncodingError{Reason: "serialize", Err: err}
	}
	return buf.Bytes(), nil
}

// textUnescaper はRFC 5545のTEXT値のエスケープを戻す。
var textUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

// Decode はiCalendar文書を読み取り、イベントを出現順に返す。
// Encodeの出力を読み戻すために使う。
func Decode(r io.Reader) ([]model.CalendarEvent, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	vevents := cal.Events()
	events := make([]model.CalendarEvent, 0, len(vevents))
	for _, ve := range vevents {
		start, err := ve.GetStartAt()
		if err != nil {
			return nil, fmt.Errorf("event %s: invalid DTSTART: %w", ve.Id(), err)
		}
		end, err := ve.GetEndAt()
		if err != nil {
			return nil, fmt.Errorf("event %s: invalid DTEND: %w", ve.Id(), err)
		}
		events = append(events, model.CalendarEvent{
			UID:         ve.Id(),
			Start:       start.UnixMilli(),
			End:         end.UnixMilli(),
			Title:       propertyText(ve, ics.ComponentPropertySummary),
			Description: propertyText(ve, ics.ComponentPropertyDescription),
			URL:         propertyText(ve, ics.ComponentPropertyUrl),
		})
	}
	return events, nil
}

func propertyText(ve *ics.VEvent, prop ics.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return textUnescaper.Replace(p.Value)
}
