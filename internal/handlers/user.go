package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/markjakearzadon/studybuddy-gobackend/internal/logger"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/models"
	"github.com/markjakearzadon/studybuddy-gobackend/internal/services"
)

// UserService is implemented by *services.UserService.
type UserService interface {
	Register(ctx context.Context, fullName, email, password string) (string, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

type UserHandler struct {
	service  UserService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewUserHandler(service UserService, log *zap.Logger) *UserHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserHandler{service: service, validate: newValidator(), logger: log}
}

type createUserRequest struct {
	FullName string `json:"fullname" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}

	id, err := h.service.Register(r.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		logger.FromContext(r.Context(), h.logger).Error("Failed to create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "success", "id": id})
}

func (h *UserHandler) GetUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.List(r.Context())
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Error("Failed to fetch users", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch users")
		return
	}
	if users == nil {
		users = []models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, h.validate, &req) {
		return
	}

	token, user, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		logger.FromContext(r.Context(), h.logger).Error("Login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"token":  token,
		"user":   user,
	})
}
