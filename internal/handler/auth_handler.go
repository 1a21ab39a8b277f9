// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
)

// sessionIDHeader はIDプロバイダのリダイレクトで受け取ったワンタイムIDを運ぶヘッダー。
const sessionIDHeader = "X-Session-ID"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Exchange(ctx context.Context, oneTimeID string) (*auth.ExchangeResult, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler はセッション交換とログインユーザー関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	cookie  CookieConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		cookie:  cookie,
	}
}

// sessionResponse はセッション交換のレスポンス。トークンはCookieでのみ返す。
type sessionResponse struct {
	User      userResponse `json:"user"`
	ExpiresAt string       `json:"expires_at"`
}

// CreateSession はワンタイムセッションIDをセッションに交換する。
// POST /api/auth/session
func (h *AuthHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Exchange(r.Context(), r.Header.Get(sessionIDHeader))
	if err != nil {
		handleServiceError(w, r, err, "")
		return
	}

	setSessionCookie(w, h.cookie, result.Token, result.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, sessionResponse{
		User:      toUserResponse(result.User),
		ExpiresAt: result.Session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// Logout はセッションを破棄してCookieを削除する。
// 未ログインでも成功として扱う。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.TokenFromRequest(r); token != "" {
		if err := h.service.Logout(r.Context(), token); err != nil {
			// Cookieは削除するので、利用者側ではログアウトが完了する
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	clearSessionCookie(w, h.cookie)
	writeJSON(w, http.StatusOK, map[string]string{"message": "ログアウトしました"})
}
