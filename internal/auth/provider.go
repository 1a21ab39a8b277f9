package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/hitoshi/taskman/internal/metrics"
	"github.com/hitoshi/taskman/internal/model"
)

var (
	// ErrIdentityRejected はIDプロバイダがワンタイムIDを不明または期限切れとして拒否したことを表す。
	ErrIdentityRejected = errors.New("identity provider rejected the session id")
	// ErrProviderUnavailable はIDプロバイダに到達できないか、不正な応答を返したことを表す。
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// IdentityProvider はワンタイムセッションIDからユーザー情報を取得するインターフェース。
type IdentityProvider interface {
	// FetchIdentity はワンタイムIDに紐づくユーザー情報を返す。
	// 失敗時はErrIdentityRejectedまたはErrProviderUnavailableをラップしたエラーを返す。
	FetchIdentity(ctx context.Context, oneTimeID string) (*model.Identity, error)
}

// HTTPProviderConfig はHTTPIdentityProviderの設定。
type HTTPProviderConfig struct {
	SessionDataURL  string
	MaxResponseSize int64
	// BreakerFailures 回連続で到達不能になるとBreakerTimeoutの間は問い合わせを行わない。
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// HTTPIdentityProvider はX-Session-IDヘッダーでセッションデータ取得APIを呼び出すIdentityProvider実装。
type HTTPIdentityProvider struct {
	client   *http.Client
	config   HTTPProviderConfig
	breaker  *gobreaker.CircuitBreaker[*model.Identity]
	recorder metrics.Recorder
}

// sessionDataResponse はセッションデータ取得APIのレスポンス。
// session_token はプロバイダ側のトークンで、このサービスでは使わない。
type sessionDataResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// NewHTTPIdentityProvider はHTTPIdentityProviderを生成する。
// clientにはSSRF対策済みクライアントかタイムアウト付きのクライアントを渡す。
func NewHTTPIdentityProvider(client *http.Client, config HTTPProviderConfig, recorder metrics.Recorder) *HTTPIdentityProvider {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if config.MaxResponseSize <= 0 {
		config.MaxResponseSize = 1 << 20
	}
	failures := config.BreakerFailures
	if failures <= 0 {
		failures = 5
	}

	p := &HTTPIdentityProvider{
		client:   client,
		config:   config,
		recorder: recorder,
	}
	p.breaker = gobreaker.NewCircuitBreaker[*model.Identity](gobreaker.Settings{
		Name:    "identity-provider",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		// プロバイダが応答した上での拒否は障害として数えない
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrIdentityRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			recorder.RecordBreakerState(to.String())
		},
	})
	recorder.RecordBreakerState(gobreaker.StateClosed.String())
	return p
}

// FetchIdentity はサーキットブレーカー越しにセッションデータ取得APIを呼び出す。
// 自動リトライは行わない。
func (p *HTTPIdentityProvider) FetchIdentity(ctx context.Context, oneTimeID string) (*model.Identity, error) {
	start := time.Now()
	identity, err := p.breaker.Execute(func() (*model.Identity, error) {
		return p.fetch(ctx, oneTimeID)
	})
	p.recorder.RecordProviderLatency(time.Since(start))

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit breaker is %s", ErrProviderUnavailable, p.breaker.State())
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (p *HTTPIdentityProvider) fetch(ctx context.Context, oneTimeID string) (*model.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.SessionDataURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build request: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("X-Session-ID", oneTimeID)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		// エラー文字列にURLが含まれるが、ワンタイムIDはヘッダーにしか載せていない
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrIdentityRejected, resp.StatusCode)
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.config.MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrProviderUnavailable, err)
	}
	if int64(len(body)) > p.config.MaxResponseSize {
		return nil, fmt.Errorf("%w: response exceeds %d bytes", ErrProviderUnavailable, p.config.MaxResponseSize)
	}

	var data sessionDataResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrProviderUnavailable, err)
	}
	if data.ID == "" || data.Email == "" {
		return nil, fmt.Errorf("%w: response is missing id or email", ErrProviderUnavailable)
	}

	return &model.Identity{
		ID:      data.ID,
		Email:   data.Email,
		Name:    data.Name,
		Picture: data.Picture,
	}, nil
}

// compile-time interface check
var _ IdentityProvider = (*HTTPIdentityProvider)(nil)
