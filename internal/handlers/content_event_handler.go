package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/comunidad/backend/internal/logging"
	"github.com/comunidad/backend/internal/models"
	"github.com/comunidad/backend/internal/services"
)

// ContentEvent announces a newly created document that needs moderation.
type ContentEvent struct {
	Collection string `json:"collection"`
	ItemType   string `json:"itemType"`
	ID         string `json:"id"`
	Province   string `json:"province"`
	Name       string `json:"name"`
}

// cloudEventEnvelope is the structured-mode CloudEvent wrapper. Binary-mode events carry
// the payload directly in the body and decode as a plain ContentEvent.
type cloudEventEnvelope struct {
	SpecVersion string          `json:"specversion"`
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Data        json.RawMessage `json:"data"`
}

var collectionItemTypes = map[string]models.ItemType{
	"services": models.ItemServicio,
	"events":   models.ItemEvento,
	"users":    models.ItemUsuario,
}

// ResolveItemType resolves the reviewable kind from the explicit item type or the source
// collection. ok is false for content that is not moderated.
func (e ContentEvent) ResolveItemType() (models.ItemType, bool) {
	if t := models.ItemType(strings.TrimSpace(e.ItemType)); t.Valid() {
		return t, true
	}
	t, ok := collectionItemTypes[strings.ToLower(strings.TrimSpace(e.Collection))]
	return t, ok
}

type ContentEventHandler struct {
	notifier AdminNotifier
	logger   *logrus.Entry
}

func NewContentEventHandler(notifier AdminNotifier, logger *logrus.Entry) *ContentEventHandler {
	if logger == nil {
		logger = logging.Logger()
	}
	return &ContentEventHandler{notifier: notifier, logger: logger}
}

// Handle serves POST /events. Events that cannot be turned into an alert are
// acknowledged so the source stops redelivering them; dispatch failures return 500 so
// it retries.
func (h *ContentEventHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Evento no válido"))
		return
	}

	event, eventID, err := parseContentEvent(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.NewErrorResponse("Evento no válido"))
		return
	}

	if eventID == "" {
		eventID = r.Header.Get("Ce-Id")
	}

	log := requestLog(h.logger, r, "content_created", "").WithFields(logging.Fields{
		"ce_id":      eventID,
		"collection": event.Collection,
		"item_id":    event.ID,
	})

	itemType, ok := event.ResolveItemType()
	if !ok {
		log.Debug("content event skipped: not a moderated kind")
		writeJSON(w, http.StatusOK, models.NewMessageResponse("Evento ignorado"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	result, err := h.notifier.NotifyAdmins(ctx, models.NotificationRequest{
		ItemType: itemType,
		ItemID:   event.ID,
		Province: event.Province,
		ItemName: event.Name,
	})
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			log.WithError(err).Warn("content event skipped: incomplete payload")
			writeJSON(w, http.StatusOK, models.NewMessageResponse("Evento ignorado"))
			return
		}
		log.WithError(err).Error("content event dispatch failed")
		writeJSON(w, http.StatusInternalServerError, models.NewErrorResponse("No se pudo notificar a los administradores"))
		return
	}

	writeJSON(w, http.StatusOK, models.NotifyAdminsResponse{
		Success:            true,
		Message:            notifyMessage(result.RecipientsNotified, event.Province),
		RecipientsNotified: result.RecipientsNotified,
	})
}

func parseContentEvent(raw json.RawMessage) (ContentEvent, string, error) {
	var envelope cloudEventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ContentEvent{}, "", err
	}

	payload, eventID := raw, ""
	if envelope.SpecVersion != "" && len(envelope.Data) > 0 {
		payload, eventID = envelope.Data, envelope.ID
	}

	var event ContentEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return ContentEvent{}, "", err
	}
	return event, eventID, nil
}
