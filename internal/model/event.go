// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
	"time"
)

// EventKeySeparator は複合イベントキーの区切り文字。
const EventKeySeparator = "#"

// CalendarResource はカレンダーの提供元を表す。
type CalendarResource string

const (
	// ResourceGoogle はGoogleカレンダー。
	ResourceGoogle CalendarResource = "google"
	// ResourceLocal は端末ローカルカレンダー（DBレコードがミラー元）。
	ResourceLocal CalendarResource = "local"
)

// Calendar はユーザーのカレンダーを表す。
// IDはプロバイダ採番のIDをそのまま使用し、アルゴリズムで生成することはない。
type Calendar struct {
	ID            string
	UserID        string
	Title         string
	Resource      CalendarResource
	GlobalPrimary bool
	AccessRole    string
	Deleted       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RecurrenceFrequency は繰り返しイベントの頻度を表す。
type RecurrenceFrequency string

const (
	// FrequencyDaily は日次の繰り返し。
	FrequencyDaily RecurrenceFrequency = "daily"
	// FrequencyWeekly は週次の繰り返し。
	FrequencyWeekly RecurrenceFrequency = "weekly"
	// FrequencyMonthly は月次の繰り返し。
	FrequencyMonthly RecurrenceFrequency = "monthly"
	// FrequencyYearly は年次の繰り返し。
	FrequencyYearly RecurrenceFrequency = "yearly"
)

// Event はカレンダーイベントを表す。
// IDは "<providerEventId>#<calendarId>" 形式の複合キーで、
// 複合キーごとに正規のDBレコードが1件だけ存在する。
type Event struct {
	ID              string
	CalendarID      string
	UserID          string
	ProviderEventID string

	Title    string
	Notes    string
	Location string

	StartAt  time.Time
	EndAt    time.Time
	Timezone string
	AllDay   bool

	// 繰り返し情報。RecurrenceRuleはRRULE形式の文字列で、
	// 構成要素（頻度・間隔・終了日・曜日リスト）も個別に保持する。
	RecurrenceRule      string
	RecurrenceFrequency RecurrenceFrequency
	RecurrenceInterval  int
	RecurrenceEndAt     *time.Time
	ByWeekday           []string

	ConferenceID string

	// スケジューリング設定。優先度以外はパススルーの不透明フィールドとして
	// JSONBカラムにそのまま保持する。
	Priority        int
	PreferenceFlags map[string]any

	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// EventKey はプロバイダイベントIDとカレンダーIDから複合イベントキーを生成する。
func EventKey(providerEventID, calendarID string) string {
	return providerEventID + EventKeySeparator + calendarID
}

// SplitEventKey は複合イベントキーをプロバイダイベントIDとカレンダーIDに分解する。
// プロバイダイベントIDに区切り文字は含まれない前提で、最初の区切りで分割する。
func SplitEventKey(key string) (providerEventID, calendarID string, err error) {
	providerEventID, calendarID, found := strings.Cut(key, EventKeySeparator)
	if !found || providerEventID == "" || calendarID == "" {
		return "", "", fmt.Errorf("invalid event key: %q", key)
	}
	return providerEventID, calendarID, nil
}

// Attendee はイベントの参加者を表す。
type Attendee struct {
	ID             string
	EventID        string
	Email          string
	Name           string
	ResponseStatus string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Reminder はイベントのリマインダーを表す。
// 更新時は差分ではなく全置換（削除して再挿入）される。
type Reminder struct {
	ID         string
	EventID    string
	UserID     string
	Minutes    int
	Method     string
	UseDefault bool
	CreatedAt  time.Time
}

// Category はユーザー定義のイベント分類を表す。
type Category struct {
	ID        string
	UserID    string
	Name      string
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CategoryEvent はカテゴリとイベントの関連を表す。
type CategoryEvent struct {
	ID         string
	CategoryID string
	EventID    string
	CreatedAt  time.Time
}

// EventPatch はイベントの部分更新を表す。
// nilフィールドは変更せず、既存の値を維持するフィールド単位のマージを行う。
type EventPatch struct {
	Title    *string
	Notes    *string
	Location *string

	StartAt  *time.Time
	EndAt    *time.Time
	Timezone *string
	AllDay   *bool

	RecurrenceFrequency *RecurrenceFrequency
	RecurrenceInterval  *int
	RecurrenceEndAt     *time.Time
	ByWeekday           *[]string

	Priority        *int
	PreferenceFlags *map[string]any
}
