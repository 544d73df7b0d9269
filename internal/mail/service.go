// Package mail は会議依頼メールの検索と本文取得を提供する。
// Microsoft Graph連携（Outlook）を持つユーザーのメールボックスのみを対象とする。
package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/calman/internal/model"
	"github.com/hitoshi/calman/internal/outlook"
	"github.com/hitoshi/calman/internal/repository"
	"github.com/hitoshi/calman/internal/security"
)

// GraphMailClient はメール検索・取得のインターフェース。
// テスタビリティのためoutlook.Clientを抽象化する。
type GraphMailClient interface {
	SearchUserEmails(ctx context.Context, query string) ([]outlook.EmailSummary, error)
	GetEmailContent(ctx context.Context, messageID string) (string, error)
}

// GraphClientFactory はユーザーごとの認証済みGraphクライアントを生成する。
// Outlook連携がない場合はOUTLOOK_NOT_CONNECTEDの型付きエラーを返す。
type GraphClientFactory func(ctx context.Context, userID string) (GraphMailClient, error)

// Service はメール検索のサービス層。
type Service struct {
	graphFactory GraphClientFactory
	sanitizer    security.NotesSanitizerService
	logger       *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(graphFactory GraphClientFactory, sanitizer security.NotesSanitizerService, logger *slog.Logger) *Service {
	return &Service{
		graphFactory: graphFactory,
		sanitizer:    sanitizer,
		logger:       logger,
	}
}

// GraphCredentials はMicrosoft Graphアプリケーションの資格情報。
type GraphCredentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// NewGraphClientFactory は保存済みのOutlook連携からクライアントを構築する
// GraphClientFactoryを返す。
func NewGraphClientFactory(integrationRepo repository.IntegrationRepository, creds GraphCredentials, logger *slog.Logger) GraphClientFactory {
	return func(ctx context.Context, userID string) (GraphMailClient, error) {
		integ, err := integrationRepo.FindActiveByUserAndResource(ctx, userID, model.IntegrationOutlook)
		if err != nil {
			return nil, fmt.Errorf("連携情報の取得に失敗しました: %w", err)
		}
		if integ == nil {
			return nil, model.NewOutlookNotConnectedError(userID)
		}
		return outlook.AuthenticatedClient(ctx, logger, creds.TenantID, creds.ClientID, creds.ClientSecret, integ), nil
	}
}

// Search はユーザーのメールボックスをキーワード検索する。
func (s *Service) Search(ctx context.Context, userID, query string) ([]outlook.EmailSummary, error) {
	client, err := s.graphFactory(ctx, userID)
	if err != nil {
		return nil, err
	}

	emails, err := client.SearchUserEmails(ctx, query)
	if err != nil {
		return nil, model.NewProviderError("Microsoft Graph", err)
	}

	s.logger.Info("メールを検索しました",
		slog.String("user_id", userID),
		slog.Int("count", len(emails)),
	)
	return emails, nil
}

// Content は指定メッセージの本文を取得する。
// HTML本文はイベントのメモと同じポリシーでサニタイズして返す。
func (s *Service) Content(ctx context.Context, userID, messageID string) (string, error) {
	client, err := s.graphFactory(ctx, userID)
	if err != nil {
		return "", err
	}

	body, err := client.GetEmailContent(ctx, messageID)
	if err != nil {
		return "", model.NewProviderError("Microsoft Graph", err)
	}
	return s.sanitizer.Sanitize(body), nil
}
