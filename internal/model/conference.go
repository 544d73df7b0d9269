package model

import "time"

// ConferenceApp はビデオ会議のプロバイダを表す。
type ConferenceApp string

const (
	// ConferenceAppZoom はZoomミーティング。
	ConferenceAppZoom ConferenceApp = "zoom"
	// ConferenceAppGoogle はGoogle Meet（hangoutsMeet）。
	ConferenceAppGoogle ConferenceApp = "google"
)

// ConferenceStatus は会議リソースの状態を表す。
type ConferenceStatus string

const (
	// ConferenceStatusActive はプロバイダ側で作成済みの会議。
	ConferenceStatusActive ConferenceStatus = "active"
	// ConferenceStatusPending はイベント書き込み時にプロバイダが
	// 作成する遅延作成の会議（Google Meet）。
	ConferenceStatusPending ConferenceStatus = "pending"
	// ConferenceStatusMissing はプロバイダ連携がなく作成できなかった
	// プレースホルダ。呼び出し元はこの状態を許容する必要がある。
	ConferenceStatusMissing ConferenceStatus = "missing"
)

// Conference はイベントに紐づくビデオ会議リソースを表す。
// イベントごとに1回作成され、リスケジュール時はインプレース更新される。
type Conference struct {
	ID         string
	UserID     string
	CalendarID string
	App        ConferenceApp
	Title      string
	Notes      string
	JoinURL    string
	StartURL   string
	Status     ConferenceStatus

	// RequestID はプロバイダ呼び出しの冪等性トークン。
	// 同一RequestIDでの再実行は重複作成ではなく上書きになる。
	RequestID string

	IsHost    bool
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
