package model

import "time"

// AnyDayOfWeek は「曜日を問わない」を表すセンチネル値。
const AnyDayOfWeek = -1

// MeetingAssist は日程調整セッションを表す。
// 参加者が希望時間帯を提出し、閾値に達すると最終スケジューリングが起動される。
type MeetingAssist struct {
	ID      string
	UserID  string
	EventID string

	WindowStartAt   time.Time
	WindowEndAt     time.Time
	Timezone        string
	DurationMinutes int

	// MinThresholdCount は最終スケジューリングを起動する確定参加者数の閾値。
	MinThresholdCount int
	AttendeeCount     int

	EnableAttendeePreferences bool
	GuaranteeAvailability     bool

	Cancelled       bool
	CalendarCreated bool
	StartedAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired は調整ウィンドウが終了しているかを返す。
func (m *MeetingAssist) Expired(now time.Time) bool {
	return now.After(m.WindowEndAt)
}

// MeetingAssistAttendee は日程調整セッションの参加者を表す。
// Externalがtrueの参加者の既存予定はmeeting_assist_eventsから、
// falseの参加者の予定はプライマリのイベントストアから取得する。
type MeetingAssistAttendee struct {
	ID              string
	MeetingAssistID string
	UserID          string
	Name            string
	Email           string
	Timezone        string
	External        bool
	CreatedAt       time.Time
}

// MeetingAssistEvent は外部参加者の既存予定（ビジー区間）を表す。
type MeetingAssistEvent struct {
	ID         string
	AttendeeID string
	Title      string
	StartAt    time.Time
	EndAt      time.Time
	Timezone   string
	CreatedAt  time.Time
}

// PreferredTimeRange は参加者が提出した希望時間帯を表す。
// 時刻はホストのタイムゾーンに変換してから永続化される。
// DayOfWeekはISO曜日（1=月〜7=日）またはAnyDayOfWeek。
type PreferredTimeRange struct {
	ID              string
	MeetingAssistID string
	AttendeeID      string
	DayOfWeek       int
	StartTime       string // "15:04" 形式
	EndTime         string // "15:04" 形式。"24:00" は排他的な日末を表す
	HostTimezone    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AvailableSlot は候補時間帯を表す一時オブジェクト。
// 表示日付ごとに計算され、永続化されない。選択されるとPreferredTimeRangeになる。
type AvailableSlot struct {
	ID      string
	StartAt time.Time
	EndAt   time.Time
}

// BusyInterval は参加者の既存予定が占める時間区間を表す。
type BusyInterval struct {
	StartAt time.Time
	EndAt   time.Time
}

// Overlaps は2つの時間区間が重なるかを返す。端点の接触は重なりとみなさない。
func (b BusyInterval) Overlaps(startAt, endAt time.Time) bool {
	return b.StartAt.Before(endAt) && startAt.Before(b.EndAt)
}
