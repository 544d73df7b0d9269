// Package event はイベントの作成・更新・削除を統括するドメインロジックを提供する。
// カレンダー解決 → 会議払い出し → プロバイダ書き込み → ローカルUPSERT →
// 関連レコードのファンアウト、の順に処理する。
package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/calman/internal/calendars"
	"github.com/hitoshi/calman/internal/conference"
	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/recurrence"
	"github.com/hitoshi/calman/internal/repository"
	"github.com/hitoshi/calman/internal/security"
)

// CalendarResolver はカレンダー解決のインターフェース。
type CalendarResolver interface {
	Resolve(ctx context.Context, userID string, opts calendars.ResolveOptions) (*model.Calendar, error)
}

// ConferenceService は会議払い出しのインターフェース。
type ConferenceService interface {
	Provision(ctx context.Context, input conference.ProvisionInput) (*model.Conference, error)
	Update(ctx context.Context, conferenceID string, title string, startAt time.Time, durationMinutes int, timezone string) error
	Delete(ctx context.Context, conferenceID string) error
}

// GoogleCalendarClient はGoogleカレンダー書き込みのインターフェース。
// テスタビリティのためgcal.Clientを抽象化する。
type GoogleCalendarClient interface {
	InsertEvent(ctx context.Context, calendarID string, event *model.Event, attendees []*model.Attendee, reminders []*model.Reminder, conferenceRequestID string) (string, error)
	PatchEvent(ctx context.Context, calendarID, providerEventID string, event *model.Event, attendees []*model.Attendee, reminders []*model.Reminder) error
	DeleteEvent(ctx context.Context, calendarID, providerEventID string) error
}

// GoogleClientFactory はユーザーごとの認証済みGoogleクライアントを生成する。
// Google連携がない場合はGOOGLE_NOT_CONNECTEDの型付きエラーを返す。
type GoogleClientFactory func(ctx context.Context, userID string) (GoogleCalendarClient, error)

// AttendeeInput は参加者の入力パラメータ。
type AttendeeInput struct {
	Email string
	Name  string
}

// ReminderInput はリマインダーの入力パラメータ。
type ReminderInput struct {
	Minutes    int
	Method     string
	UseDefault bool
}

// CreateInput はイベント作成のパラメータ。
type CreateInput struct {
	UserID     string
	CalendarID string // 省略時はカレンダー解決に委ねる

	Title    string
	Notes    string
	Location string

	StartAt  time.Time
	EndAt    time.Time
	Timezone string
	AllDay   bool

	RecurrenceFrequency model.RecurrenceFrequency
	RecurrenceInterval  int
	RecurrenceEndAt     *time.Time
	ByWeekday           []string

	Priority        int
	PreferenceFlags map[string]any

	Attendees   []AttendeeInput
	Reminders   []ReminderInput
	CategoryIDs []string

	// RequestZoom / RequestGoogle は会議払い出しの要求。
	RequestZoom   bool
	RequestGoogle bool
}

// UpdateInput はイベント部分更新のパラメータ。
// Patchのnilフィールドは変更されない。Remindersはnilなら維持、
// 非nilなら全置換される。
type UpdateInput struct {
	Patch     model.EventPatch
	Reminders *[]ReminderInput
}

// Service はイベント操作のサービス層。
type Service struct {
	eventRepo    repository.EventRepository
	attendeeRepo repository.AttendeeRepository
	reminderRepo repository.ReminderRepository
	categoryRepo repository.CategoryRepository
	assistRepo   repository.MeetingAssistRepository

	resolver      CalendarResolver
	conferenceSvc ConferenceService
	googleFactory GoogleClientFactory
	sanitizer     security.NotesSanitizerService
	logger        *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	eventRepo repository.EventRepository,
	attendeeRepo repository.AttendeeRepository,
	reminderRepo repository.ReminderRepository,
	categoryRepo repository.CategoryRepository,
	assistRepo repository.MeetingAssistRepository,
	resolver CalendarResolver,
	conferenceSvc ConferenceService,
	googleFactory GoogleClientFactory,
	sanitizer security.NotesSanitizerService,
	logger *slog.Logger,
) *Service {
	return &Service{
		eventRepo:     eventRepo,
		attendeeRepo:  attendeeRepo,
		reminderRepo:  reminderRepo,
		categoryRepo:  categoryRepo,
		assistRepo:    assistRepo,
		resolver:      resolver,
		conferenceSvc: conferenceSvc,
		googleFactory: googleFactory,
		sanitizer:     sanitizer,
		logger:        logger,
	}
}

// Get は複合キーでイベントを取得する。
func (s *Service) Get(ctx context.Context, key string) (*model.Event, error) {
	if _, _, err := model.SplitEventKey(key); err != nil {
		return nil, model.NewInvalidEventKeyError(key)
	}

	event, err := s.eventRepo.FindByID(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(key)
	}
	return event, nil
}

// Create はイベントを作成する。
// フロー: 入力検証 → カレンダー解決 → 会議払い出し → プロバイダ書き込み →
// ローカル行の作成 → 関連レコードのファンアウト。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.Event, error) {
	// 1. 入力検証
	if err := validateTimes(input); err != nil {
		return nil, err
	}

	// 2. カレンダー解決
	cal, err := s.resolver.Resolve(ctx, input.UserID, calendars.ResolveOptions{
		CalendarID:        input.CalendarID,
		WantGlobalPrimary: true,
		Resource:          model.ResourceGoogle,
	})
	if err != nil {
		return nil, err
	}

	// 3. RRULE構築と本文サニタイズ
	rule, err := recurrence.Build(input.RecurrenceFrequency, input.RecurrenceInterval, input.RecurrenceEndAt, input.ByWeekday)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	event := &model.Event{
		CalendarID:          cal.ID,
		UserID:              input.UserID,
		Title:               input.Title,
		Notes:               s.sanitizer.Sanitize(input.Notes),
		Location:            input.Location,
		StartAt:             input.StartAt,
		EndAt:               input.EndAt,
		Timezone:            input.Timezone,
		AllDay:              input.AllDay,
		RecurrenceRule:      rule,
		RecurrenceFrequency: input.RecurrenceFrequency,
		RecurrenceInterval:  normalizeInterval(input.RecurrenceInterval, rule),
		RecurrenceEndAt:     input.RecurrenceEndAt,
		ByWeekday:           input.ByWeekday,
		Priority:            input.Priority,
		PreferenceFlags:     input.PreferenceFlags,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	attendees := buildAttendees(input.Attendees, now)
	reminders := buildReminders(input.Reminders, input.UserID, now)

	// 4. 会議払い出し（参加者あり・Googleカレンダー・プロバイダ要求ありのとき）
	var conf *model.Conference
	if len(attendees) > 0 && cal.Resource == model.ResourceGoogle && (input.RequestZoom || input.RequestGoogle) {
		conf, err = s.conferenceSvc.Provision(ctx, conference.ProvisionInput{
			UserID:          input.UserID,
			CalendarID:      cal.ID,
			RequestZoom:     input.RequestZoom,
			RequestGoogle:   input.RequestGoogle,
			Title:           input.Title,
			Notes:           event.Notes,
			StartAt:         input.StartAt,
			DurationMinutes: int(input.EndAt.Sub(input.StartAt).Minutes()),
			Timezone:        input.Timezone,
		})
		if err != nil {
			return nil, err
		}
		event.ConferenceID = conf.ID
	}

	// 5. プロバイダ書き込み。ローカルカレンダーは外部呼び出しなしで
	// DBレコードがミラー元になる。
	providerEventID, err := s.writeToProvider(ctx, cal, event, attendees, reminders, conf)
	if err != nil {
		return nil, err
	}

	event.ProviderEventID = providerEventID
	event.ID = model.EventKey(providerEventID, cal.ID)

	// 6. ローカル行の作成
	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("イベントの保存に失敗しました: %w", err)
	}

	// 7. 関連レコードのファンアウト（失敗してもログに残して続行）
	s.fanOut(ctx, event, attendees, reminders, input.CategoryIDs)

	s.logger.Info("イベントを作成しました",
		slog.String("event_id", event.ID),
		slog.String("calendar_id", cal.ID),
		slog.String("resource", string(cal.Resource)),
	)
	return event, nil
}

// Update はイベントをフィールド単位でマージ更新する。
// Patchに存在するフィールドだけが上書きされ、行全体の置換は行わない。
// 同一Patchの再適用は同一の結果になる（冪等）。
func (s *Service) Update(ctx context.Context, userID, key string, input UpdateInput) (*model.Event, error) {
	providerEventID, calendarID, err := model.SplitEventKey(key)
	if err != nil {
		return nil, model.NewInvalidEventKeyError(key)
	}

	event, err := s.eventRepo.FindByID(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return nil, model.NewEventNotFoundError(key)
	}

	applyPatch(event, input.Patch, s.sanitizer)

	// 繰り返し構成が変わった場合はRRULEを再構築する
	if patchTouchesRecurrence(input.Patch) {
		rule, err := recurrence.Build(event.RecurrenceFrequency, event.RecurrenceInterval, event.RecurrenceEndAt, event.ByWeekday)
		if err != nil {
			return nil, err
		}
		event.RecurrenceRule = rule
		event.RecurrenceInterval = normalizeInterval(event.RecurrenceInterval, rule)
	}

	event.UpdatedAt = time.Now()

	// リマインダーは差分ではなく全置換
	var reminders []*model.Reminder
	if input.Reminders != nil {
		reminders = buildReminders(*input.Reminders, userID, event.UpdatedAt)
	} else {
		reminders, err = s.reminderRepo.ListByEvent(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("リマインダーの取得に失敗しました: %w", err)
		}
	}

	attendees, err := s.attendeeRepo.ListByEvent(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}

	// プロバイダ側の部分更新
	cal, err := s.resolver.Resolve(ctx, userID, calendars.ResolveOptions{CalendarID: calendarID})
	if err != nil {
		return nil, err
	}
	if cal.Resource == model.ResourceGoogle {
		client, err := s.googleFactory(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := client.PatchEvent(ctx, calendarID, providerEventID, event, attendees, reminders); err != nil {
			return nil, model.NewProviderError("Googleカレンダー", err)
		}
	}

	if err := s.eventRepo.Update(ctx, event); err != nil {
		return nil, fmt.Errorf("イベントの更新に失敗しました: %w", err)
	}

	if input.Reminders != nil {
		if err := s.reminderRepo.DeleteByEvent(ctx, key); err != nil {
			s.logger.Error("リマインダーの削除に失敗しました",
				slog.String("event_id", key),
				slog.String("error", err.Error()),
			)
		} else {
			for _, r := range reminders {
				r.EventID = key
				if err := s.reminderRepo.Create(ctx, r); err != nil {
					s.logger.Error("リマインダーの作成に失敗しました",
						slog.String("event_id", key),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}

	s.logger.Info("イベントを更新しました", slog.String("event_id", key))
	return event, nil
}

// Delete はイベントと関連レコードを削除する。
// 順序: 参加者 → リマインダー → カテゴリ関連 → 会議 → 日程調整 →
// プロバイダ削除 → ローカル行の論理削除。
func (s *Service) Delete(ctx context.Context, userID, key string) error {
	providerEventID, calendarID, err := model.SplitEventKey(key)
	if err != nil {
		return model.NewInvalidEventKeyError(key)
	}

	event, err := s.eventRepo.FindByID(ctx, key)
	if err != nil {
		return fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	if event == nil {
		return model.NewEventNotFoundError(key)
	}

	if err := s.attendeeRepo.DeleteByEvent(ctx, key); err != nil {
		return fmt.Errorf("参加者の削除に失敗しました: %w", err)
	}
	if err := s.reminderRepo.DeleteByEvent(ctx, key); err != nil {
		return fmt.Errorf("リマインダーの削除に失敗しました: %w", err)
	}
	if err := s.categoryRepo.DisconnectByEvent(ctx, key); err != nil {
		return fmt.Errorf("カテゴリ関連の削除に失敗しました: %w", err)
	}

	if event.ConferenceID != "" {
		if err := s.conferenceSvc.Delete(ctx, event.ConferenceID); err != nil {
			return err
		}
	}

	if err := s.assistRepo.DeleteByEvent(ctx, key); err != nil {
		return fmt.Errorf("日程調整の削除に失敗しました: %w", err)
	}

	// プロバイダ削除はローカル論理削除の前に行う
	cal, err := s.resolver.Resolve(ctx, userID, calendars.ResolveOptions{CalendarID: calendarID})
	if err != nil {
		return err
	}
	if cal.Resource == model.ResourceGoogle {
		client, err := s.googleFactory(ctx, userID)
		if err != nil {
			return err
		}
		if err := client.DeleteEvent(ctx, calendarID, providerEventID); err != nil {
			return model.NewProviderError("Googleカレンダー", err)
		}
	}

	if err := s.eventRepo.SoftDelete(ctx, key); err != nil {
		return fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}

	s.logger.Info("イベントを削除しました", slog.String("event_id", key))
	return nil
}

// writeToProvider はカレンダーのリソース種別に応じてプロバイダに書き込み、
// プロバイダ採番のイベントIDを返す。ローカルカレンダーはUUIDを採番する。
func (s *Service) writeToProvider(ctx context.Context, cal *model.Calendar, event *model.Event, attendees []*model.Attendee, reminders []*model.Reminder, conf *model.Conference) (string, error) {
	if cal.Resource != model.ResourceGoogle {
		return uuid.New().String(), nil
	}

	client, err := s.googleFactory(ctx, event.UserID)
	if err != nil {
		return "", err
	}

	// Google Meetの遅延作成はconferenceDataのrequest_idで要求する
	conferenceRequestID := ""
	if conf != nil && conf.App == model.ConferenceAppGoogle {
		conferenceRequestID = conf.RequestID
	}

	providerEventID, err := client.InsertEvent(ctx, cal.ID, event, attendees, reminders, conferenceRequestID)
	if err != nil {
		return "", model.NewProviderError("Googleカレンダー", err)
	}
	return providerEventID, nil
}

// fanOut は参加者・リマインダー・カテゴリ関連を独立に書き込む。
// 意図的にトランザクションにせず、失敗はログに残して残りを続行する。
func (s *Service) fanOut(ctx context.Context, event *model.Event, attendees []*model.Attendee, reminders []*model.Reminder, categoryIDs []string) {
	for _, a := range attendees {
		a.EventID = event.ID
		if err := s.attendeeRepo.Upsert(ctx, a); err != nil {
			s.logger.Error("参加者の保存に失敗しました",
				slog.String("event_id", event.ID),
				slog.String("email", a.Email),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, r := range reminders {
		r.EventID = event.ID
		if err := s.reminderRepo.Create(ctx, r); err != nil {
			s.logger.Error("リマインダーの保存に失敗しました",
				slog.String("event_id", event.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	for _, categoryID := range categoryIDs {
		if err := s.categoryRepo.Connect(ctx, categoryID, event.ID); err != nil {
			s.logger.Error("カテゴリ関連の保存に失敗しました",
				slog.String("event_id", event.ID),
				slog.String("category_id", categoryID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// validateTimes は時刻とタイムゾーンの入力を検証する。
func validateTimes(input CreateInput) error {
	if input.Timezone != "" {
		if _, err := time.LoadLocation(input.Timezone); err != nil {
			return model.NewInvalidTimezoneError(input.Timezone)
		}
	}
	if !input.AllDay && !input.EndAt.After(input.StartAt) {
		return model.NewInvalidTimeRangeError("終了時刻は開始時刻より後である必要があります")
	}
	return nil
}

// normalizeInterval は保存用の間隔を正規化する。
// ルールが構築された場合のみ1未満を1に引き上げる。
func normalizeInterval(interval int, rule string) int {
	if rule != "" && interval <= 0 {
		return 1
	}
	return interval
}

// buildAttendees は入力から参加者レコードを構築する。
func buildAttendees(inputs []AttendeeInput, now time.Time) []*model.Attendee {
	attendees := make([]*model.Attendee, 0, len(inputs))
	for _, in := range inputs {
		if in.Email == "" {
			continue
		}
		attendees = append(attendees, &model.Attendee{
			ID:        uuid.New().String(),
			Email:     in.Email,
			Name:      in.Name,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return attendees
}

// buildReminders は入力からリマインダーレコードを構築する。
func buildReminders(inputs []ReminderInput, userID string, now time.Time) []*model.Reminder {
	reminders := make([]*model.Reminder, 0, len(inputs))
	for _, in := range inputs {
		reminders = append(reminders, &model.Reminder{
			ID:         uuid.New().String(),
			UserID:     userID,
			Minutes:    in.Minutes,
			Method:     in.Method,
			UseDefault: in.UseDefault,
			CreatedAt:  now,
		})
	}
	return reminders
}

// applyPatch はPatchの非nilフィールドだけをイベントに適用する。
func applyPatch(event *model.Event, patch model.EventPatch, sanitizer security.NotesSanitizerService) {
	if patch.Title != nil {
		event.Title = *patch.Title
	}
	if patch.Notes != nil {
		event.Notes = sanitizer.Sanitize(*patch.Notes)
	}
	if patch.Location != nil {
		event.Location = *patch.Location
	}
	if patch.StartAt != nil {
		event.StartAt = *patch.StartAt
	}
	if patch.EndAt != nil {
		event.EndAt = *patch.EndAt
	}
	if patch.Timezone != nil {
		event.Timezone = *patch.Timezone
	}
	if patch.AllDay != nil {
		event.AllDay = *patch.AllDay
	}
	if patch.RecurrenceFrequency != nil {
		event.RecurrenceFrequency = *patch.RecurrenceFrequency
	}
	if patch.RecurrenceInterval != nil {
		event.RecurrenceInterval = *patch.RecurrenceInterval
	}
	if patch.RecurrenceEndAt != nil {
		event.RecurrenceEndAt = patch.RecurrenceEndAt
	}
	if patch.ByWeekday != nil {
		event.ByWeekday = *patch.ByWeekday
	}
	if patch.Priority != nil {
		event.Priority = *patch.Priority
	}
	if patch.PreferenceFlags != nil {
		event.PreferenceFlags = *patch.PreferenceFlags
	}
}

// patchTouchesRecurrence はPatchが繰り返し構成に触れているかを返す。
func patchTouchesRecurrence(patch model.EventPatch) bool {
	return patch.RecurrenceFrequency != nil ||
		patch.RecurrenceInterval != nil ||
		patch.RecurrenceEndAt != nil ||
		patch.ByWeekday != nil
}
