package domain

import "errors"

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserNotConnected   = errors.New("user not connected")
	ErrAlreadyInSession   = errors.New("user already in a session")
	ErrInvalidGender      = errors.New("invalid gender")
	ErrInvalidPreference  = errors.New("invalid match preference")
	ErrUnknownTier        = errors.New("unknown quality tier")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrUnknownRelayKind   = errors.New("unknown relay kind")
	ErrAuthentication     = errors.New("authentication failed")
	ErrTransportClosed    = errors.New("transport closed")
	ErrTransportOverflow  = errors.New("transport send queue full")
	ErrReportStoreFailure = errors.New("report store unavailable")
)
