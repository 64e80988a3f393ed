package models

import "strings"

// ItemType is the kind of content awaiting review.
type ItemType string

const (
	ItemServicio ItemType = "Servicio"
	ItemEvento   ItemType = "Evento"
	ItemUsuario  ItemType = "Usuario"
)

// Valid reports whether t is one of the known item types.
func (t ItemType) Valid() bool {
	switch t {
	case ItemServicio, ItemEvento, ItemUsuario:
		return true
	}
	return false
}

// ReviewPath is the admin panel route where items of this type are reviewed.
func (t ItemType) ReviewPath() string {
	switch t {
	case ItemServicio:
		return "/admin/services"
	case ItemEvento:
		return "/admin/events"
	case ItemUsuario:
		return "/admin/users"
	default:
		return "/admin"
	}
}

// NotificationRequest is the body accepted by POST /notify-admins.
type NotificationRequest struct {
	ItemType ItemType `json:"itemType"`
	ItemID   string   `json:"itemId"`
	Province string   `json:"province"`
	ItemName string   `json:"itemName,omitempty"`
}

// Normalize trims surrounding whitespace from every field.
func (r *NotificationRequest) Normalize() {
	r.ItemType = ItemType(strings.TrimSpace(string(r.ItemType)))
	r.ItemID = strings.TrimSpace(r.ItemID)
	r.Province = strings.TrimSpace(r.Province)
	r.ItemName = strings.TrimSpace(r.ItemName)
}

func (r *NotificationRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.ItemType == "" {
		errors["itemType"] = "itemType es obligatorio"
	} else if !r.ItemType.Valid() {
		errors["itemType"] = "itemType debe ser Servicio, Evento o Usuario"
	}
	if r.ItemID == "" {
		errors["itemId"] = "itemId es obligatorio"
	}
	if r.Province == "" {
		errors["province"] = "province es obligatorio"
	}

	return errors
}

// NotifyAdminsResponse is the success body of POST /notify-admins.
type NotifyAdminsResponse struct {
	Success            bool   `json:"success"`
	Message            string `json:"message"`
	RecipientsNotified int    `json:"recipientsNotified"`
}
