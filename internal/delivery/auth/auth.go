package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rps_arena/internal/bootstrap"
	errs "rps_arena/internal/errors"
	"rps_arena/internal/httpresponse"
	authUC "rps_arena/internal/usecase/auth"
	"rps_arena/internal/utils"
)

const sessionCookie = "sessionID"

type AuthHandler struct {
	usecaseHandler *authUC.AuthUsecaseHandler
	sessionTTL     time.Duration
	log            *zap.SugaredLogger
	onLogout       []func(ctx context.Context, userID string)
}

type RegisterRequest struct {
	Username string `json:"Username"`
	Email    string `json:"Email"`
	Password string `json:"Password"`
}

// LoginRequest takes a username or an email in Username.
type LoginRequest struct {
	Username string `json:"Username"`
	Password string `json:"Password"`
}

type SessionResponse struct {
	UserID string `json:"UserID"`
}

func NewAuthHandler(uc *authUC.AuthUsecaseHandler, cfg *bootstrap.Config, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{
		usecaseHandler: uc,
		sessionTTL:     cfg.SessionTTL,
		log:            log,
	}
}

// OnLogout registers fn to run after a session was closed.
func (a *AuthHandler) OnLogout(fn func(ctx context.Context, userID string)) {
	a.onLogout = append(a.onLogout, fn)
}

// Register godoc
// @Summary Регистрация нового пользователя
// @Description Создаёт аккаунт и профиль, устанавливает cookie sessionID
// @Tags auth
// @Accept json
// @Produce json
// @Param register body RegisterRequest true "Данные пользователя для регистрации"
// @Success 200 {object} SessionResponse
// @Failure 400 {object} httpresponse.ErrorResponse
// @Failure 409 {object} httpresponse.ErrorResponse
// @Router /register [post]
func (a *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var registerData RegisterRequest
	if err := utils.DecodeJSONRequest(r, &registerData); err != nil {
		a.log.Warnf("Register: malformed JSON: %v", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}

	sessionID, userID, err := a.usecaseHandler.RegisterUser(r.Context(), registerData.Username, registerData.Email, registerData.Password)
	if err != nil {
		if httpresponse.StatusFor(err) == http.StatusInternalServerError {
			a.log.Errorf("Register: internal error: %v", err)
		} else {
			a.log.Infof("Register: rejected %q: %v", registerData.Username, err)
		}
		httpresponse.WriteError(w, err)
		return
	}

	a.setSessionCookie(w, sessionID)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, SessionResponse{UserID: userID})
}

// Login godoc
// @Summary Вход пользователя
// @Description Авторизует по имени пользователя или email, устанавливает cookie sessionID
// @Tags auth
// @Accept json
// @Produce json
// @Param login body LoginRequest true "Данные пользователя для входа"
// @Success 200 {object} SessionResponse
// @Failure 401 {object} httpresponse.ErrorResponse
// @Failure 404 {object} httpresponse.ErrorResponse
// @Router /login [post]
func (a *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginData LoginRequest
	if err := utils.DecodeJSONRequest(r, &loginData); err != nil {
		a.log.Warnf("Login: malformed JSON: %v", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}

	sessionID, userID, err := a.usecaseHandler.LoginUser(r.Context(), loginData.Username, loginData.Password)
	if err != nil {
		switch {
		case errors.Is(err, errs.ErrUserNotFound):
			a.log.Infof("Login: user not found: %s", loginData.Username)
		case errors.Is(err, errs.ErrWrongPassword):
			a.log.Infof("Login: wrong password for user: %s", loginData.Username)
		default:
			a.log.Errorf("Login: internal error: %v", err)
		}
		httpresponse.WriteError(w, err)
		return
	}

	a.setSessionCookie(w, sessionID)
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, SessionResponse{UserID: userID})
}

// Logout godoc
// @Summary Выход пользователя
// @Description Удаляет сессию пользователя по cookie sessionID
// @Tags auth
// @Produce json
// @Success 200 {string} string "OK"
// @Failure 400 {object} httpresponse.ErrorResponse
// @Failure 401 {object} httpresponse.ErrorResponse
// @Router /logout [delete]
func (a *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		a.log.Warn("Logout: no cookie provided")
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: http.ErrNoCookie.Error()})
		return
	}

	userID, err := a.usecaseHandler.LogoutUser(r.Context(), cookie.Value)
	if err != nil {
		a.log.Warnf("Logout: %v", err)
		httpresponse.WriteError(w, err)
		return
	}
	for _, fn := range a.onLogout {
		fn(r.Context(), userID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		HttpOnly: true,
	})
	httpresponse.WriteResponseWithStatus(w, http.StatusOK, nil)
}

// GetUserID возвращает из сессии идентификатор пользователя.
// Если сессия просрочена или не найдена, пишет ошибку в http-ответ и возвращает "".
func (a *AuthHandler) GetUserID(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		a.log.Debug("GetUserID: no sessionID cookie")
		httpresponse.WriteResponseWithStatus(w, http.StatusUnauthorized,
			httpresponse.ErrorResponse{ErrorDescription: "Не найдена cookie sessionID"})
		return ""
	}

	userID, err := a.usecaseHandler.GetUserIdFromSession(r.Context(), cookie.Value)
	if err != nil {
		a.log.Debug("GetUserID: session not found or expired")
		httpresponse.WriteResponseWithStatus(w, http.StatusUnauthorized,
			httpresponse.ErrorResponse{ErrorDescription: "Сессия не найдена или истекла"})
		return ""
	}
	return userID
}

func (a *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  time.Now().Add(a.sessionTTL),
		Secure:   true,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
