package models

const (
	RoleAdmin         = "admin"
	RoleRegionalAdmin = "regional_admin"
)

// AdminUser is a directory record for someone who reviews new content.
// Email is the identity key used for deduplication.
type AdminUser struct {
	Email           string `json:"email" bson:"email" firestore:"email"`
	Name            string `json:"name" bson:"name,omitempty" firestore:"name"`
	Role            string `json:"role" bson:"role" firestore:"role"`
	ManagedProvince string `json:"managedProvince,omitempty" bson:"managedProvince,omitempty" firestore:"managedProvince,omitempty"`
}
