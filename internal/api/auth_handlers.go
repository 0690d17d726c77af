package api

import (
	"net/http"
	"time"

	"coursecast/internal/apperr"
	"coursecast/internal/models"
	"coursecast/internal/storage"
)

type registerRequest struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	DateOfBirth  string `json:"dateOfBirth"`
	MobileNumber string `json:"mobileNumber"`
	Role         string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

// HandleRegister creates an account and returns a fresh access token.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apperr.New(apperr.BadRequest, "method not allowed"))
		return
	}
	var payload registerRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}
	dateOfBirth, err := parseDate(payload.DateOfBirth)
	if err != nil {
		writeError(w, err)
		return
	}

	user, err := h.Store.CreateUser(r.Context(), storage.CreateUserParams{
		FirstName:    payload.FirstName,
		LastName:     payload.LastName,
		Email:        payload.Email,
		Password:     payload.Password,
		DateOfBirth:  dateOfBirth,
		MobileNumber: payload.MobileNumber,
		Role:         models.Role(payload.Role),
	})
	if err != nil {
		writeError(w, apperr.Internalize(err))
		return
	}

	h.Logger.Info("user registered", "user_id", user.ID, "role", string(user.Role))
	h.respondWithToken(w, http.StatusCreated, user)
}

// HandleLogin authenticates credentials and returns an access token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, apperr.New(apperr.BadRequest, "method not allowed"))
		return
	}
	var payload loginRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.Store.AuthenticateUser(r.Context(), payload.Email, payload.Password)
	if err != nil {
		writeError(w, apperr.Internalize(err))
		return
	}

	h.respondWithToken(w, http.StatusOK, user)
}

func (h *Handler) respondWithToken(w http.ResponseWriter, status int, user models.User) {
	token, err := h.Tokens.Issue(user.ID, user.Role)
	if err != nil {
		writeError(w, apperr.Internalize(err))
		return
	}
	writeJSON(w, status, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		FirstName:   user.FirstName,
		LastName:    user.LastName,
	})
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, apperr.New(apperr.BadRequest, "date of birth is required")
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, apperr.New(apperr.BadRequest, "date of birth must be an ISO 8601 date")
}
