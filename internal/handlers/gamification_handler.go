package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/comunidad/backend/internal/logging"
	"github.com/comunidad/backend/internal/middleware"
	"github.com/comunidad/backend/internal/models"
	"github.com/comunidad/backend/internal/services"
)

// ActionApplier applies a rewarded action to a user's ledger.
type ActionApplier interface {
	Apply(ctx context.Context, userID, action, requestID string) (services.ActionResult, error)
}

type GamificationHandler struct {
	ledger ActionApplier
	logger *logrus.Entry
}

func NewGamificationHandler(ledger ActionApplier, logger *logrus.Entry) *GamificationHandler {
	if logger == nil {
		logger = logging.Logger()
	}
	return &GamificationHandler{ledger: ledger, logger: logger}
}

// Apply handles POST /gamification.
func (h *GamificationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req models.GamificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Cuerpo de la solicitud no válido"))
		return
	}

	req.UserID = strings.TrimSpace(req.UserID)
	req.ActionType = strings.TrimSpace(req.ActionType)
	req.RequestID = strings.TrimSpace(req.RequestID)

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	// Members may only reward themselves; internal callers act on any user.
	if caller := middleware.GetUserID(r.Context()); caller != "" && !middleware.IsInternal(r.Context()) && caller != req.UserID {
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("No autorizado para modificar este usuario"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.ledger.Apply(ctx, req.UserID, req.ActionType, req.RequestID)
	if err != nil {
		status, msg := gamificationErrorStatus(err)
		if status >= http.StatusInternalServerError {
			requestLog(h.logger, r, "gamification_failed", req.UserID).
				WithError(err).
				WithField("action", req.ActionType).
				Error("gamification request failed")
		}
		writeJSON(w, status, models.NewErrorResponse(msg))
		return
	}

	writeJSON(w, http.StatusOK, models.GamificationResponse{
		Success:        true,
		Message:        fmt.Sprintf("Se otorgaron %d puntos por %s", result.PointsAdded, req.ActionType),
		PointsAdded:    result.PointsAdded,
		NewTotalPoints: result.NewTotalPoints,
		LevelChanged:   result.LevelChanged,
		NewLevel:       result.NewLevel,
	})
}

func gamificationErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidAction):
		return http.StatusBadRequest, "actionType no válido"
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, "Datos de entrada no válidos"
	case errors.Is(err, services.ErrUserNotFound):
		return http.StatusNotFound, "Usuario no encontrado"
	case errors.Is(err, services.ErrDuplicateRequest):
		return http.StatusConflict, "Solicitud duplicada"
	default:
		return http.StatusInternalServerError, "No se pudo actualizar la gamificación"
	}
}

// LedgerReader loads a user's ledger.
type LedgerReader interface {
	Ledger(ctx context.Context, userID string) (models.UserLedger, error)
}

type LedgerHandler struct {
	ledger LedgerReader
	logger *logrus.Entry
}

func NewLedgerHandler(ledger LedgerReader, logger *logrus.Entry) *LedgerHandler {
	if logger == nil {
		logger = logging.Logger()
	}
	return &LedgerHandler{ledger: ledger, logger: logger}
}

// Get handles GET /ledger/{userId}.
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userId"))
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Missing userId"))
		return
	}
	if caller := middleware.GetUserID(r.Context()); caller != "" && !middleware.IsInternal(r.Context()) && caller != userID {
		writeJSON(w, http.StatusForbidden, models.NewErrorResponse("No autorizado para consultar este usuario"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ledger, err := h.ledger.Ledger(ctx, userID)
	if err != nil {
		status, msg := gamificationErrorStatus(err)
		if status >= http.StatusInternalServerError {
			requestLog(h.logger, r, "ledger_read_failed", userID).WithError(err).Error("ledger read failed")
		}
		writeJSON(w, status, models.NewErrorResponse(msg))
		return
	}

	ledger.MembershipLevel = ledger.CurrentLevel()
	if ledger.Badges == nil {
		ledger.Badges = []string{}
	}
	writeJSON(w, http.StatusOK, ledger)
}
