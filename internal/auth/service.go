// Package auth はワンタイムセッションIDの交換、セッショントークンの検証、ログアウトを提供する。
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge     int           // セッション有効期間（秒）
	SlidingExpiration bool          // trueの場合、認証成功のたびに有効期限を延長する
	ExchangeClaimTTL  time.Duration // 使用済みワンタイムIDを記録しておく期間
}

// URLValidator はプロフィール画像URLの検証に使うインターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// ExchangeResult はセッション交換の結果。
// Tokenはクライアントにのみ渡し、保存するのはそのハッシュだけ。
type ExchangeResult struct {
	Token   string
	User    *model.User
	Session *model.Session
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	provider    IdentityProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig

	now          func() time.Time
	recorder     metrics.Recorder
	urlValidator URLValidator
}

// Option はServiceの任意設定。
type Option func(*Service)

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics はメトリクスの記録先を設定する。
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithURLValidator はプロフィール画像URLの検証器を設定する。
// 検証に失敗した画像URLは保存しない。
func WithURLValidator(v URLValidator) Option {
	return func(s *Service) { s.urlValidator = v }
}

// NewService はServiceを生成する。
func NewService(
	provider IdentityProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
	opts ...Option,
) *Service {
	if config.ExchangeClaimTTL <= 0 {
		config.ExchangeClaimTTL = 24 * time.Hour
	}
	s := &Service{
		provider:    provider,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
		recorder:    metrics.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Exchange はワンタイムセッションIDをセッショントークンに交換する。
// 同じIDは1回しか交換できず、2回目以降はInvalidOrExpiredTokenを返す。
// 成功時にのみセッションを1件作成する。
func (s *Service) Exchange(ctx context.Context, oneTimeID string) (*ExchangeResult, error) {
	oneTimeID = strings.TrimSpace(oneTimeID)
	if oneTimeID == "" {
		s.recorder.RecordExchange(metrics.ExchangeInvalid)
		return nil, model.NewValidationError("X-Session-ID ヘッダーが必要です")
	}

	now := s.now().UTC()

	// 1. プロバイダへの問い合わせより先に使用済みとして記録し、同時リプレイを1件に絞る
	claimed, err := s.sessionRepo.ClaimExchange(ctx, hashToken(oneTimeID), now, now.Add(s.config.ExchangeClaimTTL))
	if err != nil {
		s.recorder.RecordExchange(metrics.ExchangeInternalError)
		return nil, fmt.Errorf("failed to claim session id: %w", err)
	}
	if !claimed {
		s.recorder.RecordExchange(metrics.ExchangeReplayed)
		slog.Warn("session id replay rejected")
		return nil, model.NewInvalidOrExpiredTokenError()
	}

	// 2. プロバイダからユーザー情報を取得
	identity, err := s.provider.FetchIdentity(ctx, oneTimeID)
	if err != nil {
		if errors.Is(err, ErrIdentityRejected) {
			s.recorder.RecordExchange(metrics.ExchangeInvalid)
			return nil, model.NewInvalidOrExpiredTokenError()
		}
		s.recorder.RecordExchange(metrics.ExchangeUpstreamError)
		slog.Error("identity provider request failed", slog.String("error", err.Error()))
		return nil, model.NewUpstreamProviderError("時間をおいて再度ログインしてください")
	}

	// 3. ユーザーを作成または更新
	picture := identity.Picture
	if picture != "" && s.urlValidator != nil {
		if err := s.urlValidator.ValidateURL(picture); err != nil {
			slog.Warn("discarding unsafe picture url",
				slog.String("user_id", identity.ID),
				slog.String("reason", err.Error()),
			)
			picture = ""
		}
	}

	user, err := s.userRepo.Upsert(ctx, &model.User{
		ID:        identity.ID,
		Email:     identity.Email,
		Name:      identity.Name,
		Picture:   picture,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.recorder.RecordExchange(metrics.ExchangeInternalError)
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	// 4. セッションを発行
	token, session, err := s.createSession(ctx, user.ID, now)
	if err != nil {
		s.recorder.RecordExchange(metrics.ExchangeInternalError)
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.recorder.RecordExchange(metrics.ExchangeSuccess)
	slog.Info("session exchanged", slog.String("user_id", user.ID))

	return &ExchangeResult{Token: token, User: user, Session: session}, nil
}

// Authenticate はセッショントークンを検証し、紐づくユーザーとセッションを返す。
// トークンが空・未登録・期限切れ、またはユーザーが削除済みの場合はUnauthenticatedを返す。
// SlidingExpirationが無効な場合は何も書き込まない。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, *model.Session, error) {
	if token == "" {
		return nil, nil, model.NewUnauthenticatedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, hashToken(token))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}

	now := s.now().UTC()
	if session == nil || session.IsExpired(now) {
		return nil, nil, model.NewUnauthenticatedError()
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewUnauthenticatedError()
	}

	if s.config.SlidingExpiration {
		expiresAt := now.Add(s.maxAge())
		if err := s.sessionRepo.UpdateExpiry(ctx, session.ID, expiresAt); err != nil {
			return nil, nil, fmt.Errorf("failed to extend session: %w", err)
		}
		session.ExpiresAt = expiresAt
	}

	return user, session, nil
}

// Logout はセッションを破棄する。存在しないトークンや空のトークンでもエラーにしない。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := s.sessionRepo.DeleteByID(ctx, hashToken(token)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

func (s *Service) maxAge() time.Duration {
	return time.Duration(s.config.SessionMaxAge) * time.Second
}

// createSession はトークンを生成し、そのハッシュをIDとしてセッションを永続化する。
func (s *Service) createSession(ctx context.Context, userID string, now time.Time) (string, *model.Session, error) {
	token, err := generateToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &model.Session{
		ID:        hashToken(token),
		UserID:    userID,
		ExpiresAt: now.Add(s.maxAge()),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("failed to save session: %w", err)
	}

	return token, session, nil
}

// generateToken は暗号的に安全なセッショントークンを生成する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashToken はトークンやワンタイムIDを保存用のSHA-256ハッシュに変換する。
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
