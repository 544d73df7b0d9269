// Package conference はビデオ会議リソースの払い出しロジックを提供する。
package conference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/repository"
	"github.com/hitoshi/calman/internal/zoom"
)

// ZoomClient はZoomミーティング操作のインターフェース。
// テスタビリティのためzoom.Clientを抽象化する。
type ZoomClient interface {
	CreateMeeting(ctx context.Context, input zoom.MeetingInput) (*zoom.Meeting, error)
	UpdateMeeting(ctx context.Context, meetingID int64, input zoom.MeetingInput) error
	DeleteMeeting(ctx context.Context, meetingID int64) error
}

// ProvisionInput は会議払い出しのパラメータ。
type ProvisionInput struct {
	UserID     string
	CalendarID string

	// RequestZoom / RequestGoogle はどちらか一方だけを指定する。
	RequestZoom   bool
	RequestGoogle bool

	Title           string
	Notes           string
	StartAt         time.Time
	DurationMinutes int
	Timezone        string

	// RequestID はプロバイダ呼び出しの冪等性トークン。
	// 空の場合は新規採番される。
	RequestID string
}

// Service は会議払い出しのサービス層。
// Zoomはプロバイダ呼び出し、Google Meetは遅延作成のプレースホルダを扱う。
type Service struct {
	conferenceRepo  repository.ConferenceRepository
	integrationRepo repository.IntegrationRepository
	zoomClient      ZoomClient
	logger          *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	conferenceRepo repository.ConferenceRepository,
	integrationRepo repository.IntegrationRepository,
	zoomClient ZoomClient,
	logger *slog.Logger,
) *Service {
	return &Service{
		conferenceRepo:  conferenceRepo,
		integrationRepo: integrationRepo,
		zoomClient:      zoomClient,
		logger:          logger,
	}
}

// Provision は会議リソースを払い出す。
// フロー: プロバイダ排他チェック → Zoomは連携確認の上ミーティング作成
// （未連携ならmissingプレースホルダに降格） → Google Meetはpendingの
// プレースホルダ作成 → request_idをキーに冪等UPSERT。
func (s *Service) Provision(ctx context.Context, input ProvisionInput) (*model.Conference, error) {
	// 1. プロバイダ排他チェック
	if input.RequestZoom && input.RequestGoogle {
		return nil, model.NewConferenceAppConflictError()
	}
	if !input.RequestZoom && !input.RequestGoogle {
		return nil, model.NewConferenceAppMissingError()
	}

	requestID := input.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	now := time.Now()
	conf := &model.Conference{
		ID:         uuid.New().String(),
		UserID:     input.UserID,
		CalendarID: input.CalendarID,
		Title:      input.Title,
		Notes:      input.Notes,
		RequestID:  requestID,
		IsHost:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// 2. 同一request_idの再実行なら既存のIDを引き継ぐ
	existing, err := s.conferenceRepo.FindByRequestID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("会議の冪等性チェックに失敗しました: %w", err)
	}
	if existing != nil {
		conf.ID = existing.ID
		conf.CreatedAt = existing.CreatedAt
	}

	if input.RequestZoom {
		if err := s.provisionZoom(ctx, conf, existing, input); err != nil {
			return nil, err
		}
	} else {
		// Google MeetはイベントのconferenceData書き込み時にプロバイダが
		// 作成するため、ここではプレースホルダIDのみ永続化する
		conf.App = model.ConferenceAppGoogle
		conf.Status = model.ConferenceStatusPending
	}

	// 3. request_idをキーに冪等UPSERT
	if err := s.conferenceRepo.UpsertByRequestID(ctx, conf); err != nil {
		return nil, fmt.Errorf("会議の保存に失敗しました: %w", err)
	}

	s.logger.Info("会議リソースを払い出しました",
		slog.String("conference_id", conf.ID),
		slog.String("app", string(conf.App)),
		slog.String("status", string(conf.Status)),
	)
	return conf, nil
}

// provisionZoom はZoomミーティングを作成してconfに結果を書き込む。
// Zoom未連携の場合はエラーにせず、missingステータスのプレースホルダに
// 降格する。降格はステータスで可視化され、呼び出し元のフローは止めない。
// 同一request_idで作成済みの実会議がある場合は再作成せず、既存
// ミーティングをプロバイダ側で更新して引き継ぐ。
func (s *Service) provisionZoom(ctx context.Context, conf *model.Conference, existing *model.Conference, input ProvisionInput) error {
	conf.App = model.ConferenceAppZoom

	if existing != nil && existing.App == model.ConferenceAppZoom && existing.Status == model.ConferenceStatusActive {
		meetingID, err := zoomMeetingID(existing.ID)
		if err != nil {
			return err
		}
		if err := s.zoomClient.UpdateMeeting(ctx, meetingID, zoom.MeetingInput{
			Topic:           input.Title,
			Agenda:          input.Notes,
			StartAt:         input.StartAt,
			DurationMinutes: input.DurationMinutes,
			Timezone:        input.Timezone,
		}); err != nil {
			return model.NewProviderError("Zoom", err)
		}
		conf.ID = existing.ID
		conf.JoinURL = existing.JoinURL
		conf.StartURL = existing.StartURL
		conf.Status = model.ConferenceStatusActive
		return nil
	}

	integ, err := s.integrationRepo.FindActiveByUserAndResource(ctx, input.UserID, model.IntegrationZoom)
	if err != nil {
		return fmt.Errorf("Zoom連携の確認に失敗しました: %w", err)
	}
	if integ == nil {
		s.logger.Warn("Zoom連携がないためプレースホルダ会議に降格します",
			slog.String("user_id", input.UserID),
		)
		conf.Status = model.ConferenceStatusMissing
		return nil
	}

	meeting, err := s.zoomClient.CreateMeeting(ctx, zoom.MeetingInput{
		Topic:           input.Title,
		Agenda:          input.Notes,
		StartAt:         input.StartAt,
		DurationMinutes: input.DurationMinutes,
		Timezone:        input.Timezone,
	})
	if err != nil {
		return model.NewProviderError("Zoom", err)
	}

	conf.ID = fmt.Sprintf("%d", meeting.ID)
	conf.JoinURL = meeting.JoinURL
	conf.StartURL = meeting.StartURL
	conf.Status = model.ConferenceStatusActive
	return nil
}

// Update はリスケジュール時に会議をインプレース更新する。
// Zoomの実会議が存在する場合はプロバイダ側も更新する。
func (s *Service) Update(ctx context.Context, conferenceID string, title string, startAt time.Time, durationMinutes int, timezone string) error {
	conf, err := s.conferenceRepo.FindByID(ctx, conferenceID)
	if err != nil {
		return fmt.Errorf("会議の取得に失敗しました: %w", err)
	}
	if conf == nil {
		return nil
	}

	if conf.App == model.ConferenceAppZoom && conf.Status == model.ConferenceStatusActive {
		meetingID, err := zoomMeetingID(conf.ID)
		if err != nil {
			return err
		}
		if err := s.zoomClient.UpdateMeeting(ctx, meetingID, zoom.MeetingInput{
			Topic:           title,
			StartAt:         startAt,
			DurationMinutes: durationMinutes,
			Timezone:        timezone,
		}); err != nil {
			return model.NewProviderError("Zoom", err)
		}
	}

	conf.Title = title
	conf.UpdatedAt = time.Now()
	if err := s.conferenceRepo.Update(ctx, conf); err != nil {
		return fmt.Errorf("会議の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は会議を削除する。Zoomの実会議が存在する場合は
// プロバイダ側のミーティングも削除する。
func (s *Service) Delete(ctx context.Context, conferenceID string) error {
	conf, err := s.conferenceRepo.FindByID(ctx, conferenceID)
	if err != nil {
		return fmt.Errorf("会議の取得に失敗しました: %w", err)
	}
	if conf == nil {
		return nil
	}

	if conf.App == model.ConferenceAppZoom && conf.Status == model.ConferenceStatusActive {
		meetingID, err := zoomMeetingID(conf.ID)
		if err != nil {
			return err
		}
		if err := s.zoomClient.DeleteMeeting(ctx, meetingID); err != nil {
			// プロバイダ側の削除失敗はログに残してローカル削除を続行する
			s.logger.Error("Zoomミーティングの削除に失敗しました",
				slog.String("conference_id", conferenceID),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.conferenceRepo.SoftDelete(ctx, conferenceID); err != nil {
		return fmt.Errorf("会議の削除に失敗しました: %w", err)
	}
	return nil
}

// zoomMeetingID はZoom会議の数値IDを取り出す。
func zoomMeetingID(id string) (int64, error) {
	var meetingID int64
	if _, err := fmt.Sscanf(id, "%d", &meetingID); err != nil {
		return 0, fmt.Errorf("Zoom会議IDの形式が不正です: %q", id)
	}
	return meetingID, nil
}
