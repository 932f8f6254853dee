package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/calebmorris/habit-scheduler/internal/models"
	"github.com/calebmorris/habit-scheduler/internal/repository"
	"github.com/go-chi/chi/v5"
)

type TokenHandler struct {
	tokenRepo repository.APITokenRepository
}

func NewTokenHandler(tokenRepo repository.APITokenRepository) *TokenHandler {
	return &TokenHandler{tokenRepo: tokenRepo}
}

type createTokenRequest struct {
	Name  string `json:"name"`
	Scope string `json:"scope,omitempty"`
}

func (handler *TokenHandler) Create(w http.ResponseWriter, r *http.Request) {
	var request createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if request.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	scope := request.Scope
	if scope == "" {
		scope = "api"
	}
	if scope != "api" && scope != "ical" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "scope must be api or ical"})
		return
	}

	rawToken := generateToken()
	created, err := handler.tokenRepo.Create(r.Context(), models.APIToken{
		Name:      request.Name,
		TokenHash: repository.HashToken(rawToken),
		Scope:     scope,
	})
	if err != nil {
		slog.Error("creating token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create token"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":    created.ID,
		"name":  created.Name,
		"scope": created.Scope,
		"token": rawToken,
	})
}

func (handler *TokenHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := handler.tokenRepo.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		slog.Error("deleting token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to delete token"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func generateToken() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
