// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// 操作の失敗は必ず型付きエラーとして返し、呼び出し元が種別で分岐できるようにする。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, calendar, event, conference, assist, provider, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeCalendarNotFound       = "CALENDAR_NOT_FOUND"
	ErrCodeEventNotFound          = "EVENT_NOT_FOUND"
	ErrCodeInvalidEventKey        = "INVALID_EVENT_KEY"
	ErrCodeInvalidTimezone        = "INVALID_TIMEZONE"
	ErrCodeInvalidTimeRange       = "INVALID_TIME_RANGE"
	ErrCodeConferenceAppConflict  = "CONFERENCE_APP_CONFLICT"
	ErrCodeConferenceAppMissing   = "CONFERENCE_APP_MISSING"
	ErrCodeGoogleNotConnected     = "GOOGLE_NOT_CONNECTED"
	ErrCodeOutlookNotConnected    = "OUTLOOK_NOT_CONNECTED"
	ErrCodeProviderError          = "PROVIDER_ERROR"
	ErrCodeAssistNotFound         = "ASSIST_NOT_FOUND"
	ErrCodeAssistAttendeeNotFound = "ASSIST_ATTENDEE_NOT_FOUND"
	ErrCodeAssistCancelled        = "ASSIST_CANCELLED"
	ErrCodeAssistExpired          = "ASSIST_EXPIRED"
	ErrCodeAssistAlreadyCreated   = "ASSIST_ALREADY_CREATED"
	ErrCodeCustomTimeNotAllowed   = "CUSTOM_TIME_NOT_ALLOWED"
)

// NewCalendarNotFoundError はカレンダー未解決エラーを生成する。
// 明示指定→グローバルプライマリ→リソース別→任意の全段で一致しなかった場合に返す。
func NewCalendarNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeCalendarNotFound,
		Message:  fmt.Sprintf("対象のカレンダーが見つかりません: user=%s", userID),
		Category: "calendar",
		Action:   "カレンダー連携を確認するか、カレンダーIDを明示的に指定してください。",
	}
}

// NewEventNotFoundError はイベント未検出エラーを生成する。
func NewEventNotFoundError(eventID string) *APIError {
	return &APIError{
		Code:     ErrCodeEventNotFound,
		Message:  fmt.Sprintf("指定されたイベントが見つかりません: %s", eventID),
		Category: "event",
		Action:   "イベントIDを確認してください。",
	}
}

// NewInvalidEventKeyError は複合イベントキーの形式エラーを生成する。
func NewInvalidEventKeyError(key string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEventKey,
		Message:  fmt.Sprintf("イベントキーの形式が不正です: %s", key),
		Category: "validation",
		Action:   "\"<プロバイダイベントID>#<カレンダーID>\" 形式で指定してください。",
	}
}

// NewInvalidTimezoneError は無効なタイムゾーンエラーを生成する。
func NewInvalidTimezoneError(tz string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTimezone,
		Message:  fmt.Sprintf("無効なタイムゾーンです: %s", tz),
		Category: "validation",
		Action:   "IANAタイムゾーン名（例: Asia/Tokyo）を指定してください。",
	}
}

// NewInvalidTimeRangeError は無効な時間帯エラーを生成する。
func NewInvalidTimeRangeError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTimeRange,
		Message:  fmt.Sprintf("無効な時間帯です: %s", reason),
		Category: "validation",
		Action:   "開始時刻と終了時刻を確認してください。",
	}
}

// NewConferenceAppConflictError は会議プロバイダの重複指定エラーを生成する。
func NewConferenceAppConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeConferenceAppConflict,
		Message:  "ZoomとGoogle Meetは同時に指定できません。",
		Category: "conference",
		Action:   "会議プロバイダはいずれか一方を指定してください。",
	}
}

// NewConferenceAppMissingError は会議プロバイダの未指定エラーを生成する。
func NewConferenceAppMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeConferenceAppMissing,
		Message:  "会議プロバイダが指定されていません。",
		Category: "conference",
		Action:   "ZoomまたはGoogle Meetのいずれかを指定してください。",
	}
}

// NewGoogleNotConnectedError はGoogle連携未接続エラーを生成する。
func NewGoogleNotConnectedError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeGoogleNotConnected,
		Message:  fmt.Sprintf("Googleカレンダー連携が有効ではありません: user=%s", userID),
		Category: "provider",
		Action:   "設定画面からGoogleアカウントを連携してください。",
	}
}

// NewOutlookNotConnectedError はOutlook連携未接続エラーを生成する。
func NewOutlookNotConnectedError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeOutlookNotConnected,
		Message:  fmt.Sprintf("Outlookメール連携が有効ではありません: user=%s", userID),
		Category: "provider",
		Action:   "設定画面からMicrosoftアカウントを連携してください。",
	}
}

// NewProviderError はプロバイダAPI呼び出しの失敗エラーを生成する。
func NewProviderError(provider string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeProviderError,
		Message:  fmt.Sprintf("%s APIの呼び出しに失敗しました: %v", provider, err),
		Category: "provider",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewAssistNotFoundError は日程調整セッション未検出エラーを生成する。
func NewAssistNotFoundError(assistID string) *APIError {
	return &APIError{
		Code:     ErrCodeAssistNotFound,
		Message:  fmt.Sprintf("指定された日程調整が見つかりません: %s", assistID),
		Category: "assist",
		Action:   "招待リンクが正しいか確認してください。",
	}
}

// NewAssistAttendeeNotFoundError は日程調整参加者未検出エラーを生成する。
func NewAssistAttendeeNotFoundError(attendeeID string) *APIError {
	return &APIError{
		Code:     ErrCodeAssistAttendeeNotFound,
		Message:  fmt.Sprintf("指定された参加者が見つかりません: %s", attendeeID),
		Category: "assist",
		Action:   "参加者IDを確認してください。",
	}
}

// NewAssistCancelledError はキャンセル済みセッションへの操作エラーを生成する。
func NewAssistCancelledError() *APIError {
	return &APIError{
		Code:     ErrCodeAssistCancelled,
		Message:  "この日程調整はキャンセルされています。",
		Category: "assist",
		Action:   "主催者に新しい日程調整の作成を依頼してください。",
	}
}

// NewAssistExpiredError は期限切れセッションへの操作エラーを生成する。
func NewAssistExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAssistExpired,
		Message:  "この日程調整の回答期限は終了しています。",
		Category: "assist",
		Action:   "主催者に連絡してください。",
	}
}

// NewAssistAlreadyCreatedError は確定済みセッションへの操作エラーを生成する。
func NewAssistAlreadyCreatedError() *APIError {
	return &APIError{
		Code:     ErrCodeAssistAlreadyCreated,
		Message:  "この日程調整はすでにイベントが確定しています。",
		Category: "assist",
		Action:   "確定したイベントをカレンダーで確認してください。",
	}
}

// NewCustomTimeNotAllowedError はカスタム時間帯の提出が許可されていない場合のエラーを生成する。
func NewCustomTimeNotAllowedError() *APIError {
	return &APIError{
		Code:     ErrCodeCustomTimeNotAllowed,
		Message:  "候補以外の時間帯は提出できません。",
		Category: "assist",
		Action:   "表示されている候補時間帯から選択してください。",
	}
}
