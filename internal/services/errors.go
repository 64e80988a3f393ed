package services

import "errors"

var (
	ErrValidation           = errors.New("validation failed")
	ErrInvalidAction        = errors.New("invalid action type")
	ErrUserNotFound         = errors.New("user not found")
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrPersistence          = errors.New("persistence failure")
	ErrNotificationProvider = errors.New("notification provider failure")
)
