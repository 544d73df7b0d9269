// Package assist は日程調整セッションのドメインロジックを提供する。
// 候補時間帯の生成、希望時間帯の提出、最終スケジューリングの起動を扱う。
package assist

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/recurrence"
	"github.com/hitoshi/calman/internal/repository"
	"github.com/hitoshi/calman/internal/timeutil"
)

// デフォルトの勤務時間帯。ホストが設定を持たない場合に使用する。
const (
	defaultWorkStartTime = "09:00"
	defaultWorkEndTime   = "17:00"
)

// PreferredTimeInput は希望時間帯1件の入力パラメータ。
// 時刻は提出者（ビューア）のタイムゾーンの壁時計時刻。
type PreferredTimeInput struct {
	ID        string // 既存レコードの更新時のみ指定
	DayOfWeek int    // ISO曜日またはmodel.AnyDayOfWeek
	StartTime string // "15:04" 形式
	EndTime   string // "15:04" 形式
	OnDate    time.Time
	FromSlot  bool // 候補時間帯から選択された場合true
}

// Submission は希望時間帯の提出内容。
type Submission struct {
	ViewerTimezone string
	Added          []PreferredTimeInput
	RemovedIDs     []string
}

// Service は日程調整のサービス層。
type Service struct {
	assistRepo      repository.MeetingAssistRepository
	attendeeRepo    repository.MeetingAssistAttendeeRepository
	assistEventRepo repository.MeetingAssistEventRepository
	prefTimeRepo    repository.PreferredTimeRangeRepository
	eventRepo       repository.EventRepository
	userPrefRepo    repository.UserPreferenceRepository
	logger          *slog.Logger
	now             func() time.Time // テスト用に差し替え可能
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	assistRepo repository.MeetingAssistRepository,
	attendeeRepo repository.MeetingAssistAttendeeRepository,
	assistEventRepo repository.MeetingAssistEventRepository,
	prefTimeRepo repository.PreferredTimeRangeRepository,
	eventRepo repository.EventRepository,
	userPrefRepo repository.UserPreferenceRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		assistRepo:      assistRepo,
		attendeeRepo:    attendeeRepo,
		assistEventRepo: assistEventRepo,
		prefTimeRepo:    prefTimeRepo,
		eventRepo:       eventRepo,
		userPrefRepo:    userPrefRepo,
		logger:          logger,
		now:             time.Now,
	}
}

// Get は日程調整セッションを取得する。
func (s *Service) Get(ctx context.Context, assistID string) (*model.MeetingAssist, error) {
	assist, err := s.assistRepo.FindByID(ctx, assistID)
	if err != nil {
		return nil, fmt.Errorf("日程調整の取得に失敗しました: %w", err)
	}
	if assist == nil {
		return nil, model.NewAssistNotFoundError(assistID)
	}
	return assist, nil
}

// ListAttendees はセッションの参加者一覧を返す。
func (s *Service) ListAttendees(ctx context.Context, assistID string) ([]*model.MeetingAssistAttendee, error) {
	if _, err := s.Get(ctx, assistID); err != nil {
		return nil, err
	}

	attendees, err := s.attendeeRepo.ListByAssist(ctx, assistID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}
	return attendees, nil
}

// guard はセッション状態を検証し、操作不能な状態なら型付きエラーを返す。
// ガードで弾かれた場合、リポジトリへの書き込みは一切行われない。
func (s *Service) guard(assist *model.MeetingAssist) error {
	if assist.Cancelled {
		return model.NewAssistCancelledError()
	}
	if assist.CalendarCreated {
		return model.NewAssistAlreadyCreatedError()
	}
	if assist.Expired(s.now()) {
		return model.NewAssistExpiredError()
	}
	return nil
}

// GenerateSlots は指定日付の候補時間帯をビューアのタイムゾーンで生成する。
// 全参加者のビジー区間（内部参加者はイベントストア、外部参加者は
// 提出済み予定）と重なる候補は除外される。候補は永続化されない。
func (s *Service) GenerateSlots(ctx context.Context, assistID string, date time.Time, viewerTZ string) ([]*model.AvailableSlot, error) {
	assist, err := s.Get(ctx, assistID)
	if err != nil {
		return nil, err
	}
	if err := s.guard(assist); err != nil {
		return nil, err
	}

	viewerLoc, err := time.LoadLocation(viewerTZ)
	if err != nil {
		return nil, model.NewInvalidTimezoneError(viewerTZ)
	}

	busy, err := s.collectBusyIntervals(ctx, assist)
	if err != nil {
		return nil, err
	}

	window, ok, err := s.dayWindow(ctx, assist, date, viewerLoc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	duration := time.Duration(assist.DurationMinutes) * time.Minute
	slots := segmentSlots(window, duration, busy)

	s.logger.Debug("候補時間帯を生成しました",
		slog.String("assist_id", assistID),
		slog.Int("slot_count", len(slots)),
	)
	return slots, nil
}

// collectBusyIntervals は全参加者のビジー区間を収集する。
// 内部参加者の繰り返しイベントは出現ごとに展開する。
func (s *Service) collectBusyIntervals(ctx context.Context, assist *model.MeetingAssist) ([]model.BusyInterval, error) {
	attendees, err := s.attendeeRepo.ListByAssist(ctx, assist.ID)
	if err != nil {
		return nil, fmt.Errorf("参加者一覧の取得に失敗しました: %w", err)
	}

	var busy []model.BusyInterval
	for _, attendee := range attendees {
		if attendee.External {
			events, err := s.assistEventRepo.ListByAttendeeInWindow(ctx, attendee.ID, assist.WindowStartAt, assist.WindowEndAt)
			if err != nil {
				return nil, fmt.Errorf("外部参加者の予定取得に失敗しました: %w", err)
			}
			for _, e := range events {
				busy = append(busy, model.BusyInterval{StartAt: e.StartAt, EndAt: e.EndAt})
			}
			continue
		}

		events, err := s.eventRepo.ListByUserInWindow(ctx, attendee.UserID, assist.WindowStartAt, assist.WindowEndAt)
		if err != nil {
			return nil, fmt.Errorf("内部参加者の予定取得に失敗しました: %w", err)
		}
		for _, e := range events {
			duration := e.EndAt.Sub(e.StartAt)
			starts, err := recurrence.Occurrences(e.RecurrenceRule, e.StartAt, assist.WindowStartAt, assist.WindowEndAt)
			if err != nil {
				s.logger.Warn("繰り返しイベントの展開に失敗しました",
					slog.String("event_id", e.ID),
					slog.String("error", err.Error()),
				)
				busy = append(busy, model.BusyInterval{StartAt: e.StartAt, EndAt: e.EndAt})
				continue
			}
			for _, start := range starts {
				busy = append(busy, model.BusyInterval{StartAt: start, EndAt: start.Add(duration)})
			}
		}
	}
	return busy, nil
}

// dayWindow はホストの勤務時間帯と調整ウィンドウの共通部分を
// 指定日付のビューアタイムゾーン上の時間窓として返す。
func (s *Service) dayWindow(ctx context.Context, assist *model.MeetingAssist, date time.Time, viewerLoc *time.Location) (slotWindow, bool, error) {
	workStart, workEnd := defaultWorkStartTime, defaultWorkEndTime
	hostTZ := assist.Timezone

	pref, err := s.userPrefRepo.FindByUser(ctx, assist.UserID)
	if err != nil {
		return slotWindow{}, false, fmt.Errorf("ホスト設定の取得に失敗しました: %w", err)
	}
	if pref != nil {
		if pref.WorkStartTime != "" {
			workStart = pref.WorkStartTime
		}
		if pref.WorkEndTime != "" {
			workEnd = pref.WorkEndTime
		}
		if pref.Timezone != "" {
			hostTZ = pref.Timezone
		}
	}

	// 勤務時間帯をホストのタイムゾーンからビューアのタイムゾーンへ変換
	viewerStart, startShift, err := timeutil.ConvertWallClock(workStart, date, hostTZ, viewerLoc.String())
	if err != nil {
		return slotWindow{}, false, err
	}
	viewerEnd, endShift, err := timeutil.ConvertWallClock(workEnd, date, hostTZ, viewerLoc.String())
	if err != nil {
		return slotWindow{}, false, err
	}

	startHour, startMin, err := timeutil.ParseClock(viewerStart)
	if err != nil {
		return slotWindow{}, false, err
	}
	endHour, endMin, err := timeutil.ParseClock(viewerEnd)
	if err != nil {
		return slotWindow{}, false, err
	}

	day := slotWindow{
		start: time.Date(date.Year(), date.Month(), date.Day()+startShift, startHour, startMin, 0, 0, viewerLoc),
		end:   time.Date(date.Year(), date.Month(), date.Day()+endShift, endHour, endMin, 0, 0, viewerLoc),
	}
	window, ok := intersectWindow(day, slotWindow{start: assist.WindowStartAt, end: assist.WindowEndAt})
	return window, ok, nil
}

// SubmitPreferredTimes は希望時間帯の提出を処理する。
// 追加後に削除された未提出の候補は相殺され、リポジトリに書き込まれない。
// 確定参加者数が閾値に達した場合は最終スケジューリングを起動する。
func (s *Service) SubmitPreferredTimes(ctx context.Context, assistID, attendeeID string, submission Submission) error {
	assist, err := s.Get(ctx, assistID)
	if err != nil {
		return err
	}
	if err := s.guard(assist); err != nil {
		return err
	}

	attendee, err := s.attendeeRepo.FindByID(ctx, attendeeID)
	if err != nil {
		return fmt.Errorf("参加者の取得に失敗しました: %w", err)
	}
	if attendee == nil || attendee.MeetingAssistID != assistID {
		return model.NewAssistAttendeeNotFoundError(attendeeID)
	}

	// 追加と削除の相殺：追加リストに含まれるIDが削除リストにもある場合、
	// そのレコードはリポジトリに到達しない
	removed := make(map[string]bool, len(submission.RemovedIDs))
	for _, id := range submission.RemovedIDs {
		removed[id] = true
	}

	var added []PreferredTimeInput
	var deleteIDs []string
	for _, in := range submission.Added {
		if in.ID != "" && removed[in.ID] {
			delete(removed, in.ID)
			continue
		}
		added = append(added, in)
	}
	for id := range removed {
		deleteIDs = append(deleteIDs, id)
	}

	isHost := attendee.UserID != "" && attendee.UserID == assist.UserID
	now := s.now()

	// 追加分は書き込み前に全件検証・変換する。途中のエントリだけ
	// 拒否されて提出が部分的に永続化されるのを防ぐ。
	var prefs []*model.PreferredTimeRange
	for _, in := range added {
		// カスタム時間帯はguarantee_availabilityが有効かホスト本人のみ
		if !in.FromSlot && !assist.GuaranteeAvailability && !isHost {
			return model.NewCustomTimeNotAllowedError()
		}

		converted, err := s.toHostTimeRanges(in, submission.ViewerTimezone, assist.Timezone)
		if err != nil {
			return err
		}
		for _, pref := range converted {
			pref.MeetingAssistID = assistID
			pref.AttendeeID = attendeeID
			pref.CreatedAt = now
			pref.UpdatedAt = now
			prefs = append(prefs, pref)
		}
	}

	if err := s.prefTimeRepo.DeleteByIDs(ctx, attendeeID, deleteIDs); err != nil {
		return fmt.Errorf("希望時間帯の削除に失敗しました: %w", err)
	}

	for _, pref := range prefs {
		if err := s.prefTimeRepo.Upsert(ctx, pref); err != nil {
			return fmt.Errorf("希望時間帯の保存に失敗しました: %w", err)
		}
	}

	// 提出済み参加者数が閾値に達したら最終スケジューリングを起動
	count, err := s.prefTimeRepo.CountDistinctAttendees(ctx, assistID)
	if err != nil {
		return fmt.Errorf("提出済み参加者数の取得に失敗しました: %w", err)
	}
	if count >= assist.MinThresholdCount {
		return s.Start(ctx, assistID)
	}
	return nil
}

// 日またぎ分割で使う日境界の壁時計時刻。"24:00" は排他的な日末を表す。
const (
	startOfDayClock = "00:00"
	endOfDayClock   = "24:00"
)

// toHostTimeRanges は提出された希望時間帯をホストのタイムゾーンに正規化する。
// 日付またぎの変換ではISO曜日も補正される。変換後の範囲がホスト側の
// 深夜0時をまたぐ場合は、曜日ごとに閉じた2レコードに分割する。
func (s *Service) toHostTimeRanges(in PreferredTimeInput, viewerTZ, hostTZ string) ([]*model.PreferredTimeRange, error) {
	if in.StartTime >= in.EndTime {
		return nil, model.NewInvalidTimeRangeError("終了時刻は開始時刻より後である必要があります")
	}

	startTime, startShift, err := timeutil.ConvertWallClock(in.StartTime, in.OnDate, viewerTZ, hostTZ)
	if err != nil {
		return nil, err
	}
	endTime, endShift, err := timeutil.ConvertWallClock(in.EndTime, in.OnDate, viewerTZ, hostTZ)
	if err != nil {
		return nil, err
	}

	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}

	first := &model.PreferredTimeRange{
		ID:           id,
		DayOfWeek:    timeutil.ShiftISOWeekday(in.DayOfWeek, startShift),
		StartTime:    startTime,
		EndTime:      endTime,
		HostTimezone: hostTZ,
	}
	if endShift == startShift {
		return []*model.PreferredTimeRange{first}, nil
	}

	// 開始日側は日末まで、残りは翌曜日の日初から
	first.EndTime = endOfDayClock
	if endTime == startOfDayClock {
		// ちょうど深夜0時で終わる範囲は翌日側が空になる
		return []*model.PreferredTimeRange{first}, nil
	}
	overflow := &model.PreferredTimeRange{
		ID:           uuid.New().String(),
		DayOfWeek:    timeutil.ShiftISOWeekday(in.DayOfWeek, endShift),
		StartTime:    startOfDayClock,
		EndTime:      endTime,
		HostTimezone: hostTZ,
	}
	return []*model.PreferredTimeRange{first, overflow}, nil
}

// Start は最終スケジューリングの起動を冪等に記録する。
// 下流のスケジューリングエンジンは外部システムで、起動時刻の記録が
// このサービスの境界になる。
func (s *Service) Start(ctx context.Context, assistID string) error {
	assist, err := s.Get(ctx, assistID)
	if err != nil {
		return err
	}
	if assist.Cancelled {
		return model.NewAssistCancelledError()
	}
	if assist.StartedAt != nil {
		return nil
	}

	if err := s.assistRepo.MarkStarted(ctx, assistID, s.now()); err != nil {
		return fmt.Errorf("最終スケジューリングの起動記録に失敗しました: %w", err)
	}

	s.logger.Info("最終スケジューリングを起動しました",
		slog.String("assist_id", assistID),
	)
	return nil
}
