package model

import "time"

// User はアプリケーションのユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session は認証セッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IntegrationResource は外部プロバイダ連携の種別を表す。
type IntegrationResource string

const (
	// IntegrationGoogle はGoogleカレンダー連携。
	IntegrationGoogle IntegrationResource = "google"
	// IntegrationZoom はZoom連携。
	IntegrationZoom IntegrationResource = "zoom"
	// IntegrationOutlook はMicrosoft Graph（メール検索）連携。
	IntegrationOutlook IntegrationResource = "outlook"
)

// Integration はユーザーごとの外部プロバイダ連携を表す。
// アクセストークンはプロバイダAPIクライアントの構築に使用する。
type Integration struct {
	ID             string
	UserID         string
	Resource       IntegrationResource
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UserPreference はホストのスケジューリング設定（勤務時間帯など）を表す。
// 候補時間帯の生成で参照される。
type UserPreference struct {
	UserID        string
	WorkStartTime string // "15:04" 形式
	WorkEndTime   string // "15:04" 形式
	Timezone      string
	UpdatedAt     time.Time
}
