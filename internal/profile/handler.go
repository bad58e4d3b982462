package profile

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/getsentry/sentry-go"

	"profilehub/internal/account"
	"profilehub/internal/apperr"
	"profilehub/internal/auth"
	"profilehub/internal/httpfile"
	"profilehub/internal/respond"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type updateDetailsRequest struct {
	DisplayName string `json:"displayName"`
	Username    string `json:"username"`
}

func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		respond.ErrMessage(w, http.StatusUnauthorized, "missing token")
		return
	}

	respond.JSON(w, http.StatusOK, identity, "current user fetched successfully")
}

func (h *Handler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		respond.ErrMessage(w, http.StatusUnauthorized, "missing token")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	var body updateDetailsRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		respond.ErrMessage(w, http.StatusBadRequest, "invalid json body")
		return
	}

	updated, err := h.service.UpdateDetails(r.Context(), identity.ID, body.DisplayName, body.Username)
	if err != nil {
		fail(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, updated, "account details updated successfully")
}

func (h *Handler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.service.UpdateAvatar, "avatar updated successfully")
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.service.UpdateCoverImage, "cover image updated successfully")
}

func (h *Handler) DeleteAvatar(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		respond.ErrMessage(w, http.StatusUnauthorized, "missing token")
		return
	}

	updated, err := h.service.DeleteAvatar(r.Context(), identity.ID)
	if err != nil {
		fail(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, updated, "avatar deleted successfully")
}

func (h *Handler) updateImage(
	w http.ResponseWriter,
	r *http.Request,
	field string,
	update func(ctx context.Context, accountID, imageSource string) (account.Identity, error),
	message string,
) {
	identity, ok := auth.IdentityFrom(r.Context())
	if !ok {
		respond.ErrMessage(w, http.StatusUnauthorized, "missing token")
		return
	}

	if err := r.ParseMultipartForm(httpfile.MaxUploadSizeBytes); err != nil {
		respond.ErrMessage(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	source, err := httpfile.ImageSource(r, field)
	if err != nil {
		fail(w, err)
		return
	}

	updated, err := update(r.Context(), identity.ID, source)
	if err != nil {
		fail(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, updated, message)
}

func fail(w http.ResponseWriter, err error) {
	if apperr.Status(err) >= http.StatusInternalServerError {
		sentry.CaptureException(err)
	}
	respond.Err(w, err)
}
