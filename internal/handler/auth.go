package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/Vr3n/crown-vitality-research/internal/config"
	"github.com/Vr3n/crown-vitality-research/internal/middleware"
	"github.com/Vr3n/crown-vitality-research/internal/model"
	"github.com/Vr3n/crown-vitality-research/internal/repository"
	"github.com/Vr3n/crown-vitality-research/internal/utils"
	"github.com/Vr3n/crown-vitality-research/internal/validation"
)

// UserStore is implemented by *repository.UserRepo.
type UserStore interface {
	Create(ctx context.Context, name, email, password string, cost int) (string, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id string) (model.User, error)
}

// TokenStore is implemented by *repository.TokenRepo.
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (string, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID string) error
}

// AuthRecorder counts auth attempts. *metrics.Metrics implements it.
type AuthRecorder interface {
	AuthAttempt(kind, status string)
}

// AuthHandler bundles dependencies for the auth endpoints. These issue the
// bearer tokens the session gate accepts.
type AuthHandler struct {
	Cfg       config.Config
	Users     UserStore
	Tokens    TokenStore
	Validator *validation.Validator
	Metrics   AuthRecorder
	Log       zerolog.Logger
}

func NewAuthHandler(cfg config.Config, u UserStore, t TokenStore, v *validation.Validator, m AuthRecorder, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Validator: v, Metrics: m, Log: log.With().Str("component", "auth").Logger()}
}

type registerReq struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type authResp struct {
	User    model.User `json:"user"`
	Access  tokenPart  `json:"access"`
	Refresh tokenPart  `json:"refresh"`
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.Validator.Validate(req); err != nil {
		h.record("register", "invalid")
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout())
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Name, req.Email, req.Password, h.Cfg.BcryptCost)
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			h.record("register", "conflict")
			return c.JSON(http.StatusConflict, echo.Map{"success": false, "error": "email already exists"})
		}
		h.Log.Error().Err(err).Msg("create user failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "create user failed"})
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		h.Log.Error().Err(err).Str("user_id", uid).Msg("load user failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "load user failed"})
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "issue tokens failed"})
	}
	h.record("register", "ok")
	return c.JSON(http.StatusCreated, resp)
}

// Login: verify credentials and return a new token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := h.Validator.Validate(req); err != nil {
		h.record("login", "invalid")
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout())
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			h.record("login", "denied")
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid credentials"})
		}
		h.Log.Error().Err(err).Msg("load user failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "query failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		h.record("login", "denied")
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid credentials"})
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "issue tokens failed"})
	}
	h.record("login", "ok")
	return c.JSON(http.StatusOK, resp)
}

// Refresh: validate by hash, revoke the old token, issue a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "refresh_token required"})
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout())
	defer cancel()

	userID, err := h.Tokens.ValidateRefresh(ctx, hash)
	if err != nil {
		h.record("refresh", "denied")
		return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid refresh"})
	}
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		h.Log.Warn().Err(err).Str("user_id", userID).Msg("revoke rotated token failed")
	}

	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid refresh"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "load user failed"})
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "issue tokens failed"})
	}
	h.record("refresh", "ok")
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the refresh token in the body, or every token of the
// bearer's user when the body has none.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	_ = c.Bind(&req)
	refreshToken := strings.TrimSpace(req.RefreshToken)

	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout())
	defer cancel()

	if refreshToken != "" {
		hash := utils.HashRefreshRaw(refreshToken)
		if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
			return c.JSON(http.StatusUnauthorized, echo.Map{"success": false, "error": "invalid refresh token"})
		}
		if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}

	if who := middleware.Identity(c); who != nil {
		if err := h.Tokens.RevokeAllForUser(ctx, who.ID); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "error": "logout failed"})
		}
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "error": "provide Authorization header or refresh_token"})
}

// Me returns the current identity. Mounted behind RequireSession.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, middleware.Identity(c))
}

func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Email, u.Name, time.Duration(h.Cfg.AccessTTLMin)*time.Minute)
	if err != nil {
		h.Log.Error().Err(err).Msg("issue access token failed")
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(time.Duration(h.Cfg.RefreshTTLDays) * 24 * time.Hour)
	if err != nil {
		h.Log.Error().Err(err).Msg("issue refresh token failed")
		return authResp{}, err
	}
	if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		h.Log.Error().Err(err).Str("user_id", u.ID).Msg("save refresh token failed")
		return authResp{}, err
	}
	return authResp{
		User:    u,
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

func (h *AuthHandler) timeout() time.Duration {
	if h.Cfg.RequestTimeout > 0 {
		return h.Cfg.RequestTimeout
	}
	return 5 * time.Second
}

func (h *AuthHandler) record(kind, status string) {
	if h.Metrics != nil {
		h.Metrics.AuthAttempt(kind, status)
	}
}
