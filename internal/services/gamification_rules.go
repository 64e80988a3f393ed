package services

import (
	"fmt"
	"strings"
)

// ActionType names a member contribution that earns points.
type ActionType string

const (
	ActionCompleteProfile ActionType = "COMPLETE_PROFILE"
	ActionCreateService   ActionType = "CREATE_SERVICE"
	ActionCreateEvent     ActionType = "CREATE_EVENT"
	ActionServiceApproved ActionType = "SERVICE_APPROVED"
	ActionEventApproved   ActionType = "EVENT_APPROVED"
)

// CounterField is a per-user counter bumped alongside points.
type CounterField string

const (
	CounterNone     CounterField = ""
	CounterServices CounterField = "servicesCount"
	CounterEvents   CounterField = "eventsCount"
)

const (
	BadgeHolaMundo   = "¡Hola, Mundo!"
	BadgeEmprendedor = "El Emprendedor/a"
	BadgeAnfitrion   = "El Anfitrión/a"
)

// Rule is the reward attached to an action.
type Rule struct {
	Action  ActionType
	Points  int64
	Badge   string
	Counter CounterField
}

var rules = map[ActionType]Rule{
	ActionCompleteProfile: {Action: ActionCompleteProfile, Points: 100, Badge: BadgeHolaMundo},
	ActionCreateService:   {Action: ActionCreateService, Points: 75},
	ActionCreateEvent:     {Action: ActionCreateEvent, Points: 75},
	ActionServiceApproved: {Action: ActionServiceApproved, Points: 50, Badge: BadgeEmprendedor, Counter: CounterServices},
	ActionEventApproved:   {Action: ActionEventApproved, Points: 50, Badge: BadgeAnfitrion, Counter: CounterEvents},
}

var actionOrder = []ActionType{
	ActionCompleteProfile,
	ActionCreateService,
	ActionCreateEvent,
	ActionServiceApproved,
	ActionEventApproved,
}

// ParseActionType accepts only the listed action names, with surrounding whitespace trimmed.
func ParseActionType(value string) (ActionType, error) {
	action := ActionType(strings.TrimSpace(value))
	if _, ok := rules[action]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, value)
	}
	return action, nil
}

// RuleFor returns the reward for an action.
func RuleFor(action ActionType) (Rule, error) {
	rule, ok := rules[action]
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	return rule, nil
}

// Actions lists every rewarded action in a stable order.
func Actions() []ActionType {
	out := make([]ActionType, len(actionOrder))
	copy(out, actionOrder)
	return out
}

// Delta converts the rule into the change a ledger store applies.
func (r Rule) Delta() LedgerDelta {
	return LedgerDelta{Points: r.Points, Badge: r.Badge, Counter: r.Counter}
}
