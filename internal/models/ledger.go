package models

// MembershipLevel is the tier a member holds. It is derived from points and never set on its own.
type MembershipLevel string

const (
	LevelSocio             MembershipLevel = "Socio"
	LevelColaboradorActivo MembershipLevel = "ColaboradorActivo"
	LevelPilarComunidad    MembershipLevel = "PilarComunidad"
	LevelEmbajador         MembershipLevel = "Embajador"
)

// Point thresholds for each tier above Socio.
const (
	ColaboradorActivoThreshold int64 = 500
	PilarComunidadThreshold    int64 = 1500
	EmbajadorThreshold         int64 = 3000
)

// LevelForPoints maps a point total to its membership tier.
func LevelForPoints(points int64) MembershipLevel {
	switch {
	case points >= EmbajadorThreshold:
		return LevelEmbajador
	case points >= PilarComunidadThreshold:
		return LevelPilarComunidad
	case points >= ColaboradorActivoThreshold:
		return LevelColaboradorActivo
	default:
		return LevelSocio
	}
}

// Rank orders tiers from 0 (Socio) to 3 (Embajador). Unknown values rank -1.
func (l MembershipLevel) Rank() int {
	switch l {
	case LevelSocio:
		return 0
	case LevelColaboradorActivo:
		return 1
	case LevelPilarComunidad:
		return 2
	case LevelEmbajador:
		return 3
	default:
		return -1
	}
}

// UserLedger is the gamification state stored on a user document.
type UserLedger struct {
	UserID          string          `json:"userId" bson:"-" firestore:"-"`
	Points          int64           `json:"points" bson:"points" firestore:"points"`
	Badges          []string        `json:"badges" bson:"badges" firestore:"badges"`
	MembershipLevel MembershipLevel `json:"membershipLevel" bson:"membershipLevel" firestore:"membershipLevel"`
	ServicesCount   int64           `json:"servicesCount" bson:"servicesCount" firestore:"servicesCount"`
	EventsCount     int64           `json:"eventsCount" bson:"eventsCount" firestore:"eventsCount"`
}

// CurrentLevel returns the stored tier, falling back to the tier implied by points for
// documents written before the tier field existed.
func (l UserLedger) CurrentLevel() MembershipLevel {
	if l.MembershipLevel.Rank() < 0 {
		return LevelForPoints(l.Points)
	}
	return l.MembershipLevel
}

// HasBadge reports whether the badge is already held.
func (l UserLedger) HasBadge(badge string) bool {
	for _, b := range l.Badges {
		if b == badge {
			return true
		}
	}
	return false
}

// GamificationRequest is the body accepted by POST /gamification.
type GamificationRequest struct {
	UserID     string `json:"userId"`
	ActionType string `json:"actionType"`
	// RequestID is an optional client-generated key used to reject retried deliveries.
	RequestID string `json:"requestId,omitempty"`
}

func (r *GamificationRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.UserID == "" {
		errors["userId"] = "userId es obligatorio"
	}
	if r.ActionType == "" {
		errors["actionType"] = "actionType es obligatorio"
	}

	return errors
}

// GamificationResponse is the success body of POST /gamification.
type GamificationResponse struct {
	Success        bool             `json:"success"`
	Message        string           `json:"message"`
	PointsAdded    int64            `json:"pointsAdded"`
	NewTotalPoints int64            `json:"newTotalPoints"`
	LevelChanged   bool             `json:"levelChanged"`
	NewLevel       *MembershipLevel `json:"newLevel,omitempty"`
}
