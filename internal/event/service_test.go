package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hitoshi/calman/internal/calendars"
	"github.com/hitoshi/calman/internal/conference"
	"github.com/hitoshi/calman/internal/model"
)

// --- テスト用モック ---

// mockEventRepo はテスト用のEventRepositoryモック。
type mockEventRepo struct {
	events      map[string]*model.Event
	createCalls int
	updateCalls int
	softDeleted []string
}

func newMockEventRepo() *mockEventRepo {
	return &mockEventRepo{events: make(map[string]*model.Event)}
}

func (m *mockEventRepo) FindByID(_ context.Context, id string) (*model.Event, error) {
	e, ok := m.events[id]
	if !ok || e.Deleted {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (m *mockEventRepo) Create(_ context.Context, event *model.Event) error {
	m.createCalls++
	copied := *event
	m.events[event.ID] = &copied
	return nil
}

func (m *mockEventRepo) Update(_ context.Context, event *model.Event) error {
	m.updateCalls++
	copied := *event
	m.events[event.ID] = &copied
	return nil
}

func (m *mockEventRepo) SoftDelete(_ context.Context, id string) error {
	m.softDeleted = append(m.softDeleted, id)
	if e, ok := m.events[id]; ok {
		e.Deleted = true
	}
	return nil
}

func (m *mockEventRepo) ListByUserInWindow(_ context.Context, userID string, from, to time.Time) ([]*model.Event, error) {
	return nil, nil
}

func (m *mockEventRepo) DeleteSoftDeletedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// mockAttendeeRepo はテスト用のAttendeeRepositoryモック。
type mockAttendeeRepo struct {
	attendees   map[string][]*model.Attendee
	upsertCalls int
	upsertErr   error
	deleteCalls []string
}

func newMockAttendeeRepo() *mockAttendeeRepo {
	return &mockAttendeeRepo{attendees: make(map[string][]*model.Attendee)}
}

func (m *mockAttendeeRepo) ListByEvent(_ context.Context, eventID string) ([]*model.Attendee, error) {
	return m.attendees[eventID], nil
}

func (m *mockAttendeeRepo) Upsert(_ context.Context, attendee *model.Attendee) error {
	m.upsertCalls++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.attendees[attendee.EventID] = append(m.attendees[attendee.EventID], attendee)
	return nil
}

func (m *mockAttendeeRepo) DeleteByEvent(_ context.Context, eventID string) error {
	m.deleteCalls = append(m.deleteCalls, eventID)
	delete(m.attendees, eventID)
	return nil
}

// mockReminderRepo はテスト用のReminderRepositoryモック。
type mockReminderRepo struct {
	reminders   map[string][]*model.Reminder
	createCalls int
	deleteCalls int
}

func newMockReminderRepo() *mockReminderRepo {
	return &mockReminderRepo{reminders: make(map[string][]*model.Reminder)}
}

func (m *mockReminderRepo) ListByEvent(_ context.Context, eventID string) ([]*model.Reminder, error) {
	return m.reminders[eventID], nil
}

func (m *mockReminderRepo) Create(_ context.Context, reminder *model.Reminder) error {
	m.createCalls++
	m.reminders[reminder.EventID] = append(m.reminders[reminder.EventID], reminder)
	return nil
}

func (m *mockReminderRepo) DeleteByEvent(_ context.Context, eventID string) error {
	m.deleteCalls++
	delete(m.reminders, eventID)
	return nil
}

// mockCategoryRepo はテスト用のCategoryRepositoryモック。
type mockCategoryRepo struct {
	connected      map[string][]string // eventID -> categoryIDs
	disconnectList []string
}

func newMockCategoryRepo() *mockCategoryRepo {
	return &mockCategoryRepo{connected: make(map[string][]string)}
}

func (m *mockCategoryRepo) ListByEvent(_ context.Context, eventID string) ([]*model.Category, error) {
	return nil, nil
}

func (m *mockCategoryRepo) Connect(_ context.Context, categoryID, eventID string) error {
	m.connected[eventID] = append(m.connected[eventID], categoryID)
	return nil
}

func (m *mockCategoryRepo) DisconnectByEvent(_ context.Context, eventID string) error {
	m.disconnectList = append(m.disconnectList, eventID)
	return nil
}

// mockAssistRepo はテスト用のMeetingAssistRepositoryモック。
type mockAssistRepo struct {
	deletedByEvent []string
}

func (m *mockAssistRepo) FindByID(_ context.Context, id string) (*model.MeetingAssist, error) {
	return nil, nil
}
func (m *mockAssistRepo) Create(_ context.Context, assist *model.MeetingAssist) error { return nil }
func (m *mockAssistRepo) MarkStarted(_ context.Context, id string, at time.Time) error {
	return nil
}
func (m *mockAssistRepo) DeleteByEvent(_ context.Context, eventID string) error {
	m.deletedByEvent = append(m.deletedByEvent, eventID)
	return nil
}
func (m *mockAssistRepo) ListDueForStart(_ context.Context, now time.Time) ([]*model.MeetingAssist, error) {
	return nil, nil
}

// mockResolver はテスト用のCalendarResolverモック。
type mockResolver struct {
	calendar *model.Calendar
	err      error
}

func (m *mockResolver) Resolve(_ context.Context, userID string, opts calendars.ResolveOptions) (*model.Calendar, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.calendar, nil
}

// mockConferenceSvc はテスト用のConferenceServiceモック。
type mockConferenceSvc struct {
	provisionCalls int
	conf           *model.Conference
	deleted        []string
}

func (m *mockConferenceSvc) Provision(_ context.Context, input conference.ProvisionInput) (*model.Conference, error) {
	m.provisionCalls++
	return m.conf, nil
}

func (m *mockConferenceSvc) Update(_ context.Context, conferenceID string, title string, startAt time.Time, durationMinutes int, timezone string) error {
	return nil
}

func (m *mockConferenceSvc) Delete(_ context.Context, conferenceID string) error {
	m.deleted = append(m.deleted, conferenceID)
	return nil
}

// mockGoogleClient はテスト用のGoogleCalendarClientモック。
type mockGoogleClient struct {
	insertCalls     int
	patchCalls      int
	deleteCalls     int
	lastConfReqID   string
	providerEventID string
	insertErr       error
}

func (m *mockGoogleClient) InsertEvent(_ context.Context, calendarID string, event *model.Event, attendees []*model.Attendee, reminders []*model.Reminder, conferenceRequestID string) (string, error) {
	m.insertCalls++
	m.lastConfReqID = conferenceRequestID
	if m.insertErr != nil {
		return "", m.insertErr
	}
	return m.providerEventID, nil
}

func (m *mockGoogleClient) PatchEvent(_ context.Context, calendarID, providerEventID string, event *model.Event, attendees []*model.Attendee, reminders []*model.Reminder) error {
	m.patchCalls++
	return nil
}

func (m *mockGoogleClient) DeleteEvent(_ context.Context, calendarID, providerEventID string) error {
	m.deleteCalls++
	return nil
}

// mockSanitizer はテスト用のNotesSanitizerServiceモック。
type mockSanitizer struct{}

func (m *mockSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return "[sanitized]" + raw
}

// deps はテスト用の依存一式。
type deps struct {
	eventRepo    *mockEventRepo
	attendeeRepo *mockAttendeeRepo
	reminderRepo *mockReminderRepo
	categoryRepo *mockCategoryRepo
	assistRepo   *mockAssistRepo
	resolver     *mockResolver
	confSvc      *mockConferenceSvc
	google       *mockGoogleClient
}

func newTestService(d *deps) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := func(ctx context.Context, userID string) (GoogleCalendarClient, error) {
		return d.google, nil
	}
	return NewService(
		d.eventRepo, d.attendeeRepo, d.reminderRepo, d.categoryRepo, d.assistRepo,
		d.resolver, d.confSvc, factory, &mockSanitizer{}, logger,
	)
}

func newDeps() *deps {
	return &deps{
		eventRepo:    newMockEventRepo(),
		attendeeRepo: newMockAttendeeRepo(),
		reminderRepo: newMockReminderRepo(),
		categoryRepo: newMockCategoryRepo(),
		assistRepo:   &mockAssistRepo{},
		resolver:     &mockResolver{calendar: &model.Calendar{ID: "cal-1", Resource: model.ResourceGoogle}},
		confSvc:      &mockConferenceSvc{},
		google:       &mockGoogleClient{providerEventID: "gev-1"},
	}
}

func baseCreateInput() CreateInput {
	return CreateInput{
		UserID:   "user-1",
		Title:    "打ち合わせ",
		StartAt:  time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC),
		EndAt:    time.Date(2026, 4, 1, 11, 0, 0, 0, time.UTC),
		Timezone: "Asia/Tokyo",
	}
}

// --- 作成テスト ---

// TestCreate_GoogleCalendar はGoogleカレンダーへの作成フローをテストする。
func TestCreate_GoogleCalendar(t *testing.T) {
	d := newDeps()
	svc := newTestService(d)

	input := baseCreateInput()
	input.Attendees = []AttendeeInput{{Email: "a@example.com", Name: "参加者A"}}
	input.Reminders = []ReminderInput{{Minutes: 10, Method: "popup"}}
	input.CategoryIDs = []string{"cat-1"}

	event, err := svc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// 複合キーが構成されていること
	if event.ID != "gev-1#cal-1" {
		t.Errorf("event.ID = %q, want gev-1#cal-1", event.ID)
	}
	if d.google.insertCalls != 1 {
		t.Errorf("insertCalls = %d, want 1", d.google.insertCalls)
	}
	if d.eventRepo.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", d.eventRepo.createCalls)
	}
	// ファンアウト
	if d.attendeeRepo.upsertCalls != 1 {
		t.Errorf("attendee upsertCalls = %d, want 1", d.attendeeRepo.upsertCalls)
	}
	if d.reminderRepo.createCalls != 1 {
		t.Errorf("reminder createCalls = %d, want 1", d.reminderRepo.createCalls)
	}
	if got := d.categoryRepo.connected["gev-1#cal-1"]; len(got) != 1 || got[0] != "cat-1" {
		t.Errorf("connected categories = %v, want [cat-1]", got)
	}
	// 本文がサニタイズされていること
	if event.Notes != "" {
		t.Errorf("Notes = %q, want empty", event.Notes)
	}
}

// TestCreate_LocalCalendar はローカルカレンダーが外部呼び出しなしで
// UUIDのプロバイダIDを採番することをテストする。
func TestCreate_LocalCalendar(t *testing.T) {
	d := newDeps()
	d.resolver.calendar = &model.Calendar{ID: "cal-local", Resource: model.ResourceLocal}
	svc := newTestService(d)

	event, err := svc.Create(context.Background(), baseCreateInput())
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if d.google.insertCalls != 0 {
		t.Errorf("insertCalls = %d, want 0", d.google.insertCalls)
	}
	if event.ProviderEventID == "" {
		t.Error("ProviderEventID is empty, want generated uuid")
	}
	if event.ID != model.EventKey(event.ProviderEventID, "cal-local") {
		t.Errorf("event.ID = %q, composite key mismatch", event.ID)
	}
}

// TestCreate_WithGoogleConference は会議払い出しとconferenceDataの
// request_id伝搬をテストする。
func TestCreate_WithGoogleConference(t *testing.T) {
	d := newDeps()
	d.confSvc.conf = &model.Conference{
		ID:        "conf-1",
		App:       model.ConferenceAppGoogle,
		Status:    model.ConferenceStatusPending,
		RequestID: "req-1",
	}
	svc := newTestService(d)

	input := baseCreateInput()
	input.Attendees = []AttendeeInput{{Email: "a@example.com"}}
	input.RequestGoogle = true

	event, err := svc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if d.confSvc.provisionCalls != 1 {
		t.Errorf("provisionCalls = %d, want 1", d.confSvc.provisionCalls)
	}
	if event.ConferenceID != "conf-1" {
		t.Errorf("ConferenceID = %q, want conf-1", event.ConferenceID)
	}
	if d.google.lastConfReqID != "req-1" {
		t.Errorf("conferenceRequestID = %q, want req-1", d.google.lastConfReqID)
	}
}

// TestCreate_NoConferenceWithoutAttendees は参加者がいない場合に
// 会議払い出しが行われないことをテストする。
func TestCreate_NoConferenceWithoutAttendees(t *testing.T) {
	d := newDeps()
	svc := newTestService(d)

	input := baseCreateInput()
	input.RequestGoogle = true // 参加者なし

	if _, err := svc.Create(context.Background(), input); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if d.confSvc.provisionCalls != 0 {
		t.Errorf("provisionCalls = %d, want 0", d.confSvc.provisionCalls)
	}
}

// TestCreate_InvalidTimeRange は開始・終了の逆転が型付きエラーになることをテストする。
func TestCreate_InvalidTimeRange(t *testing.T) {
	svc := newTestService(newDeps())

	input := baseCreateInput()
	input.EndAt = input.StartAt.Add(-time.Hour)

	_, err := svc.Create(context.Background(), input)
	if err == nil {
		t.Fatal("Create returned nil error, want INVALID_TIME_RANGE")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok || apiErr.Code != model.ErrCodeInvalidTimeRange {
		t.Errorf("err = %v, want code %s", err, model.ErrCodeInvalidTimeRange)
	}
}

// TestCreate_InvalidTimezone は無効なタイムゾーンが型付きエラーになることをテストする。
func TestCreate_InvalidTimezone(t *testing.T) {
	svc := newTestService(newDeps())

	input := baseCreateInput()
	input.Timezone = "Not/AZone"

	_, err := svc.Create(context.Background(), input)
	if err == nil {
		t.Fatal("Create returned nil error, want INVALID_TIMEZONE")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok || apiErr.Code != model.ErrCodeInvalidTimezone {
		t.Errorf("err = %v, want code %s", err, model.ErrCodeInvalidTimezone)
	}
}

// TestCreate_FanOutFailureContinues はファンアウトの一部失敗が
// イベント作成自体を失敗させないことをテストする。
func TestCreate_FanOutFailureContinues(t *testing.T) {
	d := newDeps()
	d.attendeeRepo.upsertErr = errors.New("insert failed")
	svc := newTestService(d)

	input := baseCreateInput()
	input.Attendees = []AttendeeInput{{Email: "a@example.com"}}
	input.Reminders = []ReminderInput{{Minutes: 10}}

	_, err := svc.Create(context.Background(), input)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	// 参加者の失敗後もリマインダーは書き込まれること
	if d.reminderRepo.createCalls != 1 {
		t.Errorf("reminder createCalls = %d, want 1", d.reminderRepo.createCalls)
	}
}

// --- 更新テスト ---

// TestUpdate_PartialMerge はPatchの非nilフィールドだけが
// 上書きされることをテストする。
func TestUpdate_PartialMerge(t *testing.T) {
	d := newDeps()
	d.eventRepo.events["gev-1#cal-1"] = &model.Event{
		ID:              "gev-1#cal-1",
		CalendarID:      "cal-1",
		UserID:          "user-1",
		ProviderEventID: "gev-1",
		Title:           "元のタイトル",
		Location:        "会議室A",
		Priority:        3,
	}
	svc := newTestService(d)

	newTitle := "新しいタイトル"
	updated, err := svc.Update(context.Background(), "user-1", "gev-1#cal-1", UpdateInput{
		Patch: model.EventPatch{Title: &newTitle},
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Title != "新しいタイトル" {
		t.Errorf("Title = %q, want 新しいタイトル", updated.Title)
	}
	// Patchに含まれないフィールドは維持されること
	if updated.Location != "会議室A" {
		t.Errorf("Location = %q, want 会議室A", updated.Location)
	}
	if updated.Priority != 3 {
		t.Errorf("Priority = %d, want 3", updated.Priority)
	}
	if d.google.patchCalls != 1 {
		t.Errorf("patchCalls = %d, want 1", d.google.patchCalls)
	}
}

// TestUpdate_Idempotent は同一Patchの再適用が同一結果になることをテストする。
func TestUpdate_Idempotent(t *testing.T) {
	d := newDeps()
	d.eventRepo.events["gev-1#cal-1"] = &model.Event{
		ID:              "gev-1#cal-1",
		CalendarID:      "cal-1",
		UserID:          "user-1",
		ProviderEventID: "gev-1",
		Title:           "元のタイトル",
	}
	svc := newTestService(d)

	newTitle := "確定タイトル"
	input := UpdateInput{
		Patch:     model.EventPatch{Title: &newTitle},
		Reminders: &[]ReminderInput{{Minutes: 15, Method: "popup"}},
	}

	first, err := svc.Update(context.Background(), "user-1", "gev-1#cal-1", input)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	second, err := svc.Update(context.Background(), "user-1", "gev-1#cal-1", input)
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	if first.Title != second.Title {
		t.Errorf("titles differ: %q vs %q", first.Title, second.Title)
	}
	// リマインダーは呼び出しごとに全置換1回（delete→insert）
	if d.reminderRepo.deleteCalls != 2 {
		t.Errorf("reminder deleteCalls = %d, want 2", d.reminderRepo.deleteCalls)
	}
	if got := len(d.reminderRepo.reminders["gev-1#cal-1"]); got != 1 {
		t.Errorf("stored reminders = %d, want 1", got)
	}
}

// TestUpdate_RecurrenceRebuild は繰り返し構成の変更でRRULEが
// 再構築されることをテストする。
func TestUpdate_RecurrenceRebuild(t *testing.T) {
	d := newDeps()
	d.eventRepo.events["gev-1#cal-1"] = &model.Event{
		ID:              "gev-1#cal-1",
		CalendarID:      "cal-1",
		UserID:          "user-1",
		ProviderEventID: "gev-1",
	}
	svc := newTestService(d)

	freq := model.FrequencyWeekly
	until := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	weekdays := []string{"MO"}

	updated, err := svc.Update(context.Background(), "user-1", "gev-1#cal-1", UpdateInput{
		Patch: model.EventPatch{
			RecurrenceFrequency: &freq,
			RecurrenceEndAt:     &until,
			ByWeekday:           &weekdays,
		},
	})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.RecurrenceRule == "" {
		t.Error("RecurrenceRule is empty, want rebuilt rule")
	}
	if updated.RecurrenceInterval != 1 {
		t.Errorf("RecurrenceInterval = %d, want normalized 1", updated.RecurrenceInterval)
	}
}

// TestUpdate_NotFound は存在しないイベントの更新が型付きエラーになることをテストする。
func TestUpdate_NotFound(t *testing.T) {
	svc := newTestService(newDeps())

	_, err := svc.Update(context.Background(), "user-1", "nope#cal-1", UpdateInput{})
	if err == nil {
		t.Fatal("Update returned nil error, want EVENT_NOT_FOUND")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok || apiErr.Code != model.ErrCodeEventNotFound {
		t.Errorf("err = %v, want code %s", err, model.ErrCodeEventNotFound)
	}
}

// TestUpdate_InvalidKey は不正な複合キーが型付きエラーになることをテストする。
func TestUpdate_InvalidKey(t *testing.T) {
	svc := newTestService(newDeps())

	_, err := svc.Update(context.Background(), "user-1", "no-separator", UpdateInput{})
	if err == nil {
		t.Fatal("Update returned nil error, want INVALID_EVENT_KEY")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok || apiErr.Code != model.ErrCodeInvalidEventKey {
		t.Errorf("err = %v, want code %s", err, model.ErrCodeInvalidEventKey)
	}
}

// --- 削除テスト ---

// TestDelete_Sequence は関連レコード → 会議 → 日程調整 → プロバイダ →
// 論理削除の順に処理されることをテストする。
func TestDelete_Sequence(t *testing.T) {
	d := newDeps()
	d.eventRepo.events["gev-1#cal-1"] = &model.Event{
		ID:              "gev-1#cal-1",
		CalendarID:      "cal-1",
		UserID:          "user-1",
		ProviderEventID: "gev-1",
		ConferenceID:    "conf-1",
	}
	svc := newTestService(d)

	if err := svc.Delete(context.Background(), "user-1", "gev-1#cal-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	if len(d.attendeeRepo.deleteCalls) != 1 {
		t.Errorf("attendee deleteCalls = %v, want 1 call", d.attendeeRepo.deleteCalls)
	}
	if d.reminderRepo.deleteCalls != 1 {
		t.Errorf("reminder deleteCalls = %d, want 1", d.reminderRepo.deleteCalls)
	}
	if len(d.categoryRepo.disconnectList) != 1 {
		t.Errorf("disconnect calls = %v, want 1 call", d.categoryRepo.disconnectList)
	}
	if len(d.confSvc.deleted) != 1 || d.confSvc.deleted[0] != "conf-1" {
		t.Errorf("conference deleted = %v, want [conf-1]", d.confSvc.deleted)
	}
	if len(d.assistRepo.deletedByEvent) != 1 {
		t.Errorf("assist deletedByEvent = %v, want 1 call", d.assistRepo.deletedByEvent)
	}
	if d.google.deleteCalls != 1 {
		t.Errorf("google deleteCalls = %d, want 1", d.google.deleteCalls)
	}
	if len(d.eventRepo.softDeleted) != 1 || d.eventRepo.softDeleted[0] != "gev-1#cal-1" {
		t.Errorf("softDeleted = %v, want [gev-1#cal-1]", d.eventRepo.softDeleted)
	}
}

// TestDelete_NotFound は存在しないイベントの削除が型付きエラーになることをテストする。
func TestDelete_NotFound(t *testing.T) {
	svc := newTestService(newDeps())

	err := svc.Delete(context.Background(), "user-1", "nope#cal-1")
	if err == nil {
		t.Fatal("Delete returned nil error, want EVENT_NOT_FOUND")
	}
	apiErr, ok := err.(*model.APIError)
	if !ok || apiErr.Code != model.ErrCodeEventNotFound {
		t.Errorf("err = %v, want code %s", err, model.ErrCodeEventNotFound)
	}
}
