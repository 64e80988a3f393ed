package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/comunidad/backend/internal/logging"
	"github.com/comunidad/backend/internal/models"
	"github.com/comunidad/backend/internal/services"
)

// AdminNotifier alerts admins about content waiting for review.
type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, req models.NotificationRequest) (services.NotifyResult, error)
}

type NotifyHandler struct {
	notifier AdminNotifier
	logger   *logrus.Entry
}

func NewNotifyHandler(notifier AdminNotifier, logger *logrus.Entry) *NotifyHandler {
	if logger == nil {
		logger = logging.Logger()
	}
	return &NotifyHandler{notifier: notifier, logger: logger}
}

// NotifyAdmins handles POST /notify-admins.
func (h *NotifyHandler) NotifyAdmins(w http.ResponseWriter, r *http.Request) {
	var req models.NotificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Cuerpo de la solicitud no válido"))
		return
	}

	req.Normalize()
	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, models.NewValidationErrorResponse(errs))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.notifier.NotifyAdmins(ctx, req)
	if err != nil {
		status, msg := notifyErrorStatus(err)
		if status >= http.StatusInternalServerError {
			requestLog(h.logger, r, "notify_admins_failed", "").
				WithError(err).
				WithFields(logging.Fields{"item_id": req.ItemID, "province": req.Province}).
				Error("admin notification failed")
		}
		writeJSON(w, status, models.NewErrorResponse(msg))
		return
	}

	writeJSON(w, http.StatusOK, models.NotifyAdminsResponse{
		Success:            true,
		Message:            notifyMessage(result.RecipientsNotified, req.Province),
		RecipientsNotified: result.RecipientsNotified,
	})
}

func notifyMessage(recipients int, province string) string {
	switch recipients {
	case 0:
		return fmt.Sprintf("No hay administradores para notificar en %s", province)
	case 1:
		return "Notificación enviada a 1 administrador"
	default:
		return fmt.Sprintf("Notificación enviada a %d administradores", recipients)
	}
}

func notifyErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, "Datos de entrada no válidos"
	case errors.Is(err, services.ErrNotificationProvider):
		return http.StatusInternalServerError, "No se pudo enviar la notificación"
	default:
		return http.StatusInternalServerError, "No se pudo consultar el directorio de administradores"
	}
}
