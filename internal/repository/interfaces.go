// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/calman/internal/model"
)

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error
}

// IntegrationRepository は外部プロバイダ連携の永続化インターフェース。
type IntegrationRepository interface {
	// FindActiveByUserAndResource はユーザーの有効な連携を取得する。
	// 見つからない場合はnilを返す（Zoom未連携チェックはこのnilで判定する）。
	FindActiveByUserAndResource(ctx context.Context, userID string, resource model.IntegrationResource) (*model.Integration, error)

	// UpdateToken はリフレッシュ後のアクセストークンを保存する。
	UpdateToken(ctx context.Context, id, accessToken string, expiresAt *time.Time) error

	// Upsert は(user_id, resource)をキーに連携を冪等にUPSERTする。
	Upsert(ctx context.Context, integ *model.Integration) error
}

// UserPreferenceRepository はホストのスケジューリング設定の永続化インターフェース。
type UserPreferenceRepository interface {
	// FindByUser は指定ユーザーの設定を取得する。見つからない場合はnilを返す。
	FindByUser(ctx context.Context, userID string) (*model.UserPreference, error)

	// Upsert は設定を冪等にUPSERTする。
	Upsert(ctx context.Context, pref *model.UserPreference) error
}

// CalendarRepository はカレンダーデータの永続化インターフェース。
// カレンダー解決の4段階検索（明示ID→グローバルプライマリ→リソース別→任意）を支える。
type CalendarRepository interface {
	// FindByID は指定IDのカレンダーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Calendar, error)

	// FindGlobalPrimaryByUser はglobal_primaryフラグの立ったカレンダーを取得する。
	// 見つからない場合はnilを返す。
	FindGlobalPrimaryByUser(ctx context.Context, userID string) (*model.Calendar, error)

	// FindFirstByUserAndResource は指定リソースのカレンダーを1件取得する。
	// 見つからない場合はnilを返す。
	FindFirstByUserAndResource(ctx context.Context, userID string, resource model.CalendarResource) (*model.Calendar, error)

	// FindFirstByUser はユーザーの任意のカレンダーを1件取得する。
	// 見つからない場合はnilを返す。
	FindFirstByUser(ctx context.Context, userID string) (*model.Calendar, error)

	// ListByUser はユーザーのカレンダー一覧を返す。
	ListByUser(ctx context.Context, userID string) ([]*model.Calendar, error)

	// Upsert はカレンダーを冪等にUPSERTする（プロバイダ同期用）。
	Upsert(ctx context.Context, cal *model.Calendar) error
}

// EventRepository はイベントデータの永続化インターフェース。
// 複合キー "<providerEventId>#<calendarId>" ごとに正規レコードが1件だけ存在する。
type EventRepository interface {
	// FindByID は指定複合キーのイベントを取得する。見つからない場合はnilを返す。
	// 論理削除済みのイベントは返さない。
	FindByID(ctx context.Context, id string) (*model.Event, error)

	// Create は新規イベントを作成する。
	Create(ctx context.Context, event *model.Event) error

	// Update は既存イベントを上書き更新する。
	// フィールド単位のマージはサービス層で行い、ここでは行全体を書き込む。
	Update(ctx context.Context, event *model.Event) error

	// SoftDelete はイベントに削除フラグを立てる。
	SoftDelete(ctx context.Context, id string) error

	// ListByUserInWindow は指定ユーザーの期間内イベントを返す。
	// 日程調整のビジー区間収集で使用する。論理削除済みは含まない。
	ListByUserInWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.Event, error)

	// DeleteSoftDeletedBefore は保持期限を過ぎた論理削除済みイベントを
	// 物理削除し、削除件数を返す。
	DeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AttendeeRepository は参加者データの永続化インターフェース。
type AttendeeRepository interface {
	// ListByEvent はイベントの参加者一覧を返す。
	ListByEvent(ctx context.Context, eventID string) ([]*model.Attendee, error)

	// Upsert は(event_id, email)をキーに参加者を冪等にUPSERTする。
	Upsert(ctx context.Context, attendee *model.Attendee) error

	// DeleteByEvent はイベントの参加者を全て削除する。
	DeleteByEvent(ctx context.Context, eventID string) error
}

// ReminderRepository はリマインダーデータの永続化インターフェース。
// 更新は差分ではなく全置換（DeleteByEvent→Create）で行う。
type ReminderRepository interface {
	// ListByEvent はイベントのリマインダー一覧を返す。
	ListByEvent(ctx context.Context, eventID string) ([]*model.Reminder, error)

	// Create はリマインダーを作成する。
	Create(ctx context.Context, reminder *model.Reminder) error

	// DeleteByEvent はイベントのリマインダーを全て削除する。
	DeleteByEvent(ctx context.Context, eventID string) error
}

// CategoryRepository はカテゴリとイベントの関連の永続化インターフェース。
type CategoryRepository interface {
	// ListByEvent はイベントに関連付いたカテゴリ一覧を返す。
	ListByEvent(ctx context.Context, eventID string) ([]*model.Category, error)

	// Connect はカテゴリとイベントを関連付ける。既に関連済みの場合は何もしない。
	Connect(ctx context.Context, categoryID, eventID string) error

	// DisconnectByEvent はイベントのカテゴリ関連を全て削除する。
	DisconnectByEvent(ctx context.Context, eventID string) error
}

// ConferenceRepository は会議リソースの永続化インターフェース。
type ConferenceRepository interface {
	// FindByID は指定IDの会議を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Conference, error)

	// FindByRequestID は冪等性トークンで会議を検索する。見つからない場合はnilを返す。
	FindByRequestID(ctx context.Context, requestID string) (*model.Conference, error)

	// UpsertByRequestID はrequest_idをキーに会議を冪等にUPSERTする。
	// 同一request_idでの再実行は重複作成ではなく上書きになる。
	UpsertByRequestID(ctx context.Context, conf *model.Conference) error

	// Update は会議情報を更新する（リスケジュール時のインプレース更新）。
	Update(ctx context.Context, conf *model.Conference) error

	// SoftDelete は会議に削除フラグを立てる。
	SoftDelete(ctx context.Context, id string) error
}

// MeetingAssistRepository は日程調整セッションの永続化インターフェース。
type MeetingAssistRepository interface {
	// FindByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.MeetingAssist, error)

	// Create はセッションを作成する。
	Create(ctx context.Context, assist *model.MeetingAssist) error

	// MarkStarted は最終スケジューリングの起動時刻を冪等に記録する。
	// すでに記録済みの場合は何もしない。
	MarkStarted(ctx context.Context, id string, at time.Time) error

	// DeleteByEvent はイベントに紐づくセッションを削除する（イベント削除時）。
	DeleteByEvent(ctx context.Context, eventID string) error

	// ListDueForStart は回答ウィンドウが終了し、未起動かつ未キャンセルの
	// セッションを取得する。複数ワーカーが同じ行を取得しうるため、
	// 起動の排他はMarkStartedの条件付き更新で担保する。
	ListDueForStart(ctx context.Context, now time.Time) ([]*model.MeetingAssist, error)
}

// MeetingAssistAttendeeRepository は日程調整参加者の永続化インターフェース。
type MeetingAssistAttendeeRepository interface {
	// FindByID は指定IDの参加者を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.MeetingAssistAttendee, error)

	// ListByAssist はセッションの参加者一覧を返す。
	ListByAssist(ctx context.Context, assistID string) ([]*model.MeetingAssistAttendee, error)

	// Create は参加者を作成する。
	Create(ctx context.Context, attendee *model.MeetingAssistAttendee) error
}

// MeetingAssistEventRepository は外部参加者の既存予定の永続化インターフェース。
type MeetingAssistEventRepository interface {
	// ListByAttendeeInWindow は外部参加者の期間内の予定を返す。
	ListByAttendeeInWindow(ctx context.Context, attendeeID string, from, to time.Time) ([]*model.MeetingAssistEvent, error)

	// Create は予定を作成する。
	Create(ctx context.Context, event *model.MeetingAssistEvent) error
}

// PreferredTimeRangeRepository は希望時間帯の永続化インターフェース。
type PreferredTimeRangeRepository interface {
	// ListByAssist はセッションの希望時間帯一覧を返す。
	ListByAssist(ctx context.Context, assistID string) ([]*model.PreferredTimeRange, error)

	// ListByAttendee は参加者の希望時間帯一覧を返す。
	ListByAttendee(ctx context.Context, attendeeID string) ([]*model.PreferredTimeRange, error)

	// Upsert は希望時間帯を冪等にUPSERTする。
	Upsert(ctx context.Context, pref *model.PreferredTimeRange) error

	// DeleteByIDs は参加者自身の希望時間帯を指定IDで削除する。
	// 他参加者のレコードを誤って消さないようattendee_idを常に条件に含める。
	DeleteByIDs(ctx context.Context, attendeeID string, ids []string) error

	// CountDistinctAttendees は希望を提出済みの参加者数を返す。
	// 最終スケジューリング起動の閾値判定に使用する。
	CountDistinctAttendees(ctx context.Context, assistID string) (int, error)
}
