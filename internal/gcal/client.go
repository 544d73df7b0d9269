// Package gcal はGoogleカレンダーAPIのクライアントを提供する。
// ユーザーごとに保存済みのOAuthトークンからクライアントを構築し、
// イベントの挿入・部分更新・削除・期間取得を行う。
package gcal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/hitoshi/calman/internal/model"
)

// conferenceSolutionMeet はGoogle Meet会議のソリューション種別。
const conferenceSolutionMeet = "hangoutsMeet"

// Client はGoogleカレンダーAPIのクライアント。
// 1ユーザー分の認証済みサービスを保持する。
type Client struct {
	service *calendar.Service
	logger  *slog.Logger
}

// NewClient は保存済みの連携トークンから認証済みクライアントを生成する。
// トークンが期限切れの場合はoauth2のTokenSourceが自動的にリフレッシュする。
func NewClient(ctx context.Context, logger *slog.Logger, clientID, clientSecret string, integ *model.Integration) (*Client, error) {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarScope},
	}

	token := &oauth2.Token{
		AccessToken:  integ.AccessToken,
		RefreshToken: integ.RefreshToken,
	}
	if integ.TokenExpiresAt != nil {
		token.Expiry = *integ.TokenExpiresAt
	}

	service, err := calendar.NewService(ctx, option.WithTokenSource(config.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("カレンダーサービスの作成に失敗しました: %w", err)
	}

	return &Client{service: service, logger: logger}, nil
}

// InsertEvent はイベントをGoogleカレンダーに作成し、採番されたイベントIDを返す。
// conferenceRequestIDが空でない場合はGoogle Meet会議の作成を同時に要求する。
func (c *Client) InsertEvent(ctx context.Context, calendarID string, event *model.Event, attendees []*model.Attendee, reminders []*model.Reminder, conferenceRequestID string) (string, error) {
	gev := toGoogleEvent(event, attendees, reminders)

	call := c.service.Events.Insert(calendarID, gev).Context(ctx)
	if conferenceRequestID != "" {
		gev.ConferenceData = &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId: conferenceRequestID,
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{
					Type: conferenceSolutionMeet,
				},
			},
		}
		call = call.ConferenceDataVersion(1)
	}

	created, err := call.Do()
	if err != nil {
		c.logger.Error("Googleカレンダーへのイベント作成に失敗しました",
			slog.String("calendar_id", calendarID),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}

	c.logger.Info("Googleカレンダーにイベントを作成しました",
		slog.String("calendar_id", calendarID),
		slog.String("provider_event_id", created.Id),
	)
	return created.Id, nil
}

// PatchEvent はGoogleカレンダーのイベントを部分更新する。
// 渡されたイベントの内容のみを送信し、それ以外のフィールドは維持される。
func (c *Client) PatchEvent(ctx context.Context, calendarID, providerEventID string, event *model.Event, attendees []*model.Attendee, reminders []*model.Reminder) error {
	gev := toGoogleEvent(event, attendees, reminders)

	_, err := c.service.Events.Patch(calendarID, providerEventID, gev).Context(ctx).Do()
	if err != nil {
		c.logger.Error("Googleカレンダーのイベント更新に失敗しました",
			slog.String("calendar_id", calendarID),
			slog.String("provider_event_id", providerEventID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("イベントの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteEvent はGoogleカレンダーのイベントを削除する。
func (c *Client) DeleteEvent(ctx context.Context, calendarID, providerEventID string) error {
	err := c.service.Events.Delete(calendarID, providerEventID).Context(ctx).Do()
	if err != nil {
		c.logger.Error("Googleカレンダーのイベント削除に失敗しました",
			slog.String("calendar_id", calendarID),
			slog.String("provider_event_id", providerEventID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}
	return nil
}

// ListEventsInWindow は指定期間のイベントを繰り返し展開済みで取得する。
func (c *Client) ListEventsInWindow(ctx context.Context, calendarID string, from, to time.Time) ([]*calendar.Event, error) {
	events, err := c.service.Events.List(calendarID).
		Context(ctx).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	return events.Items, nil
}

// toGoogleEvent はドメインモデルをGoogleカレンダーのイベントに変換する。
func toGoogleEvent(event *model.Event, attendees []*model.Attendee, reminders []*model.Reminder) *calendar.Event {
	gev := &calendar.Event{
		Summary:     event.Title,
		Description: event.Notes,
		Location:    event.Location,
	}

	if event.AllDay {
		// 終日イベントは日付のみで指定する
		gev.Start = &calendar.EventDateTime{Date: event.StartAt.Format("2006-01-02")}
		gev.End = &calendar.EventDateTime{Date: event.EndAt.Format("2006-01-02")}
	} else {
		gev.Start = &calendar.EventDateTime{
			DateTime: event.StartAt.Format(time.RFC3339),
			TimeZone: event.Timezone,
		}
		gev.End = &calendar.EventDateTime{
			DateTime: event.EndAt.Format(time.RFC3339),
			TimeZone: event.Timezone,
		}
	}

	if event.RecurrenceRule != "" {
		gev.Recurrence = []string{"RRULE:" + event.RecurrenceRule}
	}

	for _, a := range attendees {
		gev.Attendees = append(gev.Attendees, &calendar.EventAttendee{
			Email:          a.Email,
			DisplayName:    a.Name,
			ResponseStatus: a.ResponseStatus,
		})
	}

	if len(reminders) > 0 {
		overrides := make([]*calendar.EventReminder, 0, len(reminders))
		useDefault := false
		for _, r := range reminders {
			if r.UseDefault {
				useDefault = true
				continue
			}
			method := r.Method
			if method == "" {
				method = "popup"
			}
			overrides = append(overrides, &calendar.EventReminder{
				Method:  method,
				Minutes: int64(r.Minutes),
			})
		}
		gev.Reminders = &calendar.EventReminders{
			UseDefault:      useDefault,
			Overrides:       overrides,
			ForceSendFields: []string{"UseDefault"},
		}
	}

	return gev
}
