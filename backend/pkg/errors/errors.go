package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeEvent represents malformed or unusable chat events
	ErrorTypeEvent ErrorType = "event"
	// ErrorTypeGraph represents graph store errors
	ErrorTypeGraph ErrorType = "graph"
	// ErrorTypeLayout represents layout computation errors
	ErrorTypeLayout ErrorType = "layout"
	// ErrorTypePersistence represents persistence backend errors
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypeDiscord represents Discord-related errors
	ErrorTypeDiscord ErrorType = "discord"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation/timeout errors
	ErrorTypeContext ErrorType = "context"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Event Errors

// ErrInvalidEvent is returned when a chat event cannot produce a graph mutation:
// it has no speaker, no guild, or no addressee can be inferred for it.
type ErrInvalidEvent struct {
	*BaseError
	Reason string
}

func NewInvalidEvent(reason string) *ErrInvalidEvent {
	return &ErrInvalidEvent{
		BaseError: NewBaseError(ErrorTypeEvent, fmt.Sprintf("invalid event: %s", reason), nil),
		Reason:    reason,
	}
}

// Graph Errors

// ErrGuildRemoved is returned when an operation targets a guild graph that was
// explicitly removed and has not been recreated by a new event.
type ErrGuildRemoved struct {
	*BaseError
	GuildID string
}

func NewGuildRemoved(guildID string) *ErrGuildRemoved {
	return &ErrGuildRemoved{
		BaseError: NewBaseError(ErrorTypeGraph, fmt.Sprintf("guild graph removed: %s", guildID), nil),
		GuildID:   guildID,
	}
}

// Persistence Errors

// ErrPersistenceFailed is returned when a load/save against the persistence
// backend fails. Never fatal to ingestion; callers log and continue in-memory.
type ErrPersistenceFailed struct {
	*BaseError
	GuildID   string
	Operation string
}

func NewPersistenceFailed(operation, guildID string, err error) *ErrPersistenceFailed {
	return &ErrPersistenceFailed{
		BaseError: NewBaseError(ErrorTypePersistence, fmt.Sprintf("%s failed for guild %s", operation, guildID), err),
		GuildID:   guildID,
		Operation: operation,
	}
}

// Discord Errors

// ErrDiscordSendFailed is returned when sending a Discord message fails
type ErrDiscordSendFailed struct {
	*BaseError
	ChannelID string
}

func NewDiscordSendFailed(channelID string, err error) *ErrDiscordSendFailed {
	return &ErrDiscordSendFailed{
		BaseError: NewBaseError(ErrorTypeDiscord, "failed to send message", err),
		ChannelID: channelID,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled mid-operation
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}
	if baseErr, ok := err.(*BaseError); ok {
		return baseErr.Type == errType
	}
	if typed, ok := err.(interface{ Base() *BaseError }); ok {
		return typed.Base().Type == errType
	}
	// Check wrapped errors
	if wrapped, ok := err.(interface{ Unwrap() error }); ok {
		return IsErrorType(wrapped.Unwrap(), errType)
	}
	return false
}

// Base exposes the embedded BaseError for type checks through IsErrorType.
func (e *ErrInvalidEvent) Base() *BaseError       { return e.BaseError }
func (e *ErrGuildRemoved) Base() *BaseError       { return e.BaseError }
func (e *ErrPersistenceFailed) Base() *BaseError  { return e.BaseError }
func (e *ErrDiscordSendFailed) Base() *BaseError  { return e.BaseError }
func (e *ErrContextCancelled) Base() *BaseError   { return e.BaseError }
func (e *ErrConfigValidationFailed) Base() *BaseError { return e.BaseError }
