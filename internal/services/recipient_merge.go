package services

import (
	"strings"

	"github.com/comunidad/backend/internal/models"
)

// MergeRecipients unions admin lists keyed by email, compared case-insensitively.
// When an address appears more than once the entry from the later list wins, but it
// keeps the position where the address was first seen. Entries without an email are
// dropped.
func MergeRecipients(lists ...[]models.AdminUser) []models.AdminUser {
	index := make(map[string]int)
	var merged []models.AdminUser

	for _, list := range lists {
		for _, admin := range list {
			key := normalizeEmail(admin.Email)
			if key == "" {
				continue
			}
			admin.Email = strings.TrimSpace(admin.Email)

			if pos, ok := index[key]; ok {
				merged[pos] = admin
				continue
			}
			index[key] = len(merged)
			merged = append(merged, admin)
		}
	}

	if merged == nil {
		return []models.AdminUser{}
	}
	return merged
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
