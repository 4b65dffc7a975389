package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/samber/lo"

	"github.com/cwrk-planet/chat/internal/domain"
	"github.com/cwrk-planet/chat/internal/errs"
	"github.com/cwrk-planet/chat/internal/service"
)

const maxBodyBytes = 64 << 10

type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, userNameOrEmail, password string) (*service.LoginResult, error)
	Authenticate(token string) (domain.Identity, error)
}

type HistoryService interface {
	History(ctx context.Context) ([]domain.ChatMessage, error)
}

type Handler struct {
	authSvc AuthService
	chatSvc HistoryService
}

func NewHandler(auth AuthService, chat HistoryService) *Handler {
	return &Handler{authSvc: auth, chatSvc: chat}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write json response failed", slog.Any("err", err))
	}
}

func writeError(w http.ResponseWriter, err error, msg string) {
	writeJSON(w, errs.ToHTTP(err), ErrorResponse{Error: ErrorBody{Code: errs.Code(err), Message: msg}})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return nil
}

// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.WarnContext(r.Context(), "handler.Register.Decode", slog.Any("err", err))
		writeJSON(w, http.StatusBadRequest, []errs.Failure{{Code: "InvalidRequest", Description: "request body is not valid JSON"}})
		return
	}

	_, err := h.authSvc.Register(r.Context(), service.RegisterInput{
		UserName: req.UserName,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		var ve *errs.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, ve.Failures)
			return
		}
		slog.ErrorContext(r.Context(), "handler.Register", slog.Any("err", err))
		writeError(w, err, "registration failed")
		return
	}

	w.WriteHeader(http.StatusOK)
}

// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrorBody{Code: "InvalidRequest", Message: "invalid json"}})
		return
	}

	res, err := h.authSvc.Login(r.Context(), req.UserNameOrEmail, req.Password)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidCredentials) || errors.Is(err, errs.ErrAuthenticationRejected) {
			writeError(w, err, "invalid user name, email or password")
			return
		}
		slog.ErrorContext(r.Context(), "handler.Login", slog.Any("err", err))
		writeError(w, err, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:    res.Token,
		UserName: res.User.UserName,
		UserID:   res.User.ID.String(),
	})
}

// GET /api/messages
func (h *Handler) Messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.chatSvc.History(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "handler.Messages", slog.Any("err", err))
		writeError(w, err, "history is unavailable")
		return
	}

	writeJSON(w, http.StatusOK, lo.Map(msgs, func(m domain.ChatMessage, _ int) MessageItem {
		return MessageItem{ID: m.ID, UserName: m.UserName, Content: m.Content, SentAt: m.SentAt}
	}))
}
