package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"profilehub/internal/apperr"
	"profilehub/internal/httpfile"
	"profilehub/internal/respond"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"

	maxJSONBodyBytes = 1 << 20
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(httpfile.MaxUploadSizeBytes); err != nil {
		respond.ErrMessage(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	avatar, err := httpfile.ImageSource(r, "avatar")
	if err != nil {
		fail(w, err)
		return
	}
	cover, err := httpfile.OptionalImageSource(r, "coverImage")
	if err != nil {
		fail(w, err)
		return
	}

	identity, err := h.service.Register(r.Context(), RegisterInput{
		Username:     r.FormValue("username"),
		Email:        r.FormValue("email"),
		Password:     r.FormValue("password"),
		DisplayName:  r.FormValue("displayName"),
		AvatarSource: avatar,
		CoverSource:  cover,
	})
	if err != nil {
		fail(w, err)
		return
	}

	respond.JSON(w, http.StatusCreated, identity, "account registered successfully")
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	identifier := body.Identifier
	if identifier == "" {
		identifier = body.Username
	}
	if identifier == "" {
		identifier = body.Email
	}

	result, err := h.service.Login(r.Context(), identifier, body.Password)
	if err != nil {
		// An unknown identifier reads the same as a bad password here, so the
		// endpoint cannot be used to enumerate accounts.
		if apperr.KindOf(err) == apperr.KindNotFound {
			respond.ErrMessage(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		fail(w, err)
		return
	}

	h.setTokenCookies(w, result.Tokens)
	respond.JSON(w, http.StatusOK, map[string]any{
		"user":         result.Identity,
		"accessToken":  result.Tokens.AccessToken,
		"refreshToken": result.Tokens.RefreshToken,
	}, "logged in successfully")
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	presented := ""
	if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
		presented = cookie.Value
	}
	if presented == "" {
		// No cookie: the token may be in the body. An absent body reads as a
		// missing token, not a malformed request.
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		var body refreshRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			respond.ErrMessage(w, http.StatusBadRequest, "invalid json body")
			return
		}
		presented = body.RefreshToken
	}

	tokens, err := h.service.Refresh(r.Context(), presented)
	if err != nil {
		fail(w, err)
		return
	}

	h.setTokenCookies(w, tokens)
	respond.JSON(w, http.StatusOK, tokens, "access token refreshed")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		respond.ErrMessage(w, http.StatusUnauthorized, "missing token")
		return
	}

	if err := h.service.Logout(r.Context(), identity.ID); err != nil {
		fail(w, err)
		return
	}

	clearTokenCookies(w)
	respond.JSON(w, http.StatusOK, nil, "logged out successfully")
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		respond.ErrMessage(w, http.StatusUnauthorized, "missing token")
		return
	}

	var body changePasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), identity.ID, body.OldPassword, body.NewPassword); err != nil {
		fail(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, nil, "password updated successfully")
}

func (h *Handler) setTokenCookies(w http.ResponseWriter, tokens TokenPair) {
	setCookie(w, accessTokenCookie, tokens.AccessToken, h.service.issuer.AccessTTL())
	setCookie(w, refreshTokenCookie, tokens.RefreshToken, h.service.issuer.RefreshTTL())
}

func clearTokenCookies(w http.ResponseWriter) {
	setCookie(w, accessTokenCookie, "", -time.Hour)
	setCookie(w, refreshTokenCookie, "", -time.Hour)
}

func setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		respond.ErrMessage(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func fail(w http.ResponseWriter, err error) {
	if apperr.Status(err) >= http.StatusInternalServerError {
		sentry.CaptureException(err)
	}
	respond.Err(w, err)
}
