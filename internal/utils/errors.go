package utils

import "errors"

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

func (appErr *AppError) Unwrap() error { return appErr.Origin }

// Standard error codes for the application
const (
	// Storage errors
	ErrNotFound           = "NOT_FOUND"
	ErrDuplicate          = "DUPLICATE"
	ErrStorageUnavailable = "STORAGE_UNAVAILABLE"

	// Authentication/Authorization errors
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrInvalidToken       = "INVALID_TOKEN"
	ErrInvalidCredentials = "INVALID_CREDENTIALS"
	ErrUsernameTaken      = "USERNAME_TAKEN"
	ErrEmailTaken         = "EMAIL_TAKEN"

	// Input validation
	ErrInvalidInput     = "INVALID_INPUT"
	ErrInvalidUsername  = "INVALID_USERNAME"
	ErrEmptyMessageBody = "EMPTY_MESSAGE_BODY"

	// Messaging errors
	ErrProfileNotFound      = "PROFILE_NOT_FOUND"
	ErrRecipientNotFound    = "RECIPIENT_NOT_FOUND"
	ErrSelfConversation     = "SELF_CONVERSATION_NOT_ALLOWED"
	ErrConversationNotFound = "CONVERSATION_NOT_FOUND"
	ErrNotAMember           = "NOT_A_MEMBER"

	// Actor communication errors
	ErrActorTimeout = "ACTOR_TIMEOUT"
)

const genericFailureMessage = "Something went wrong, please try again"

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

func NewNotFoundError(what string, origin error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: what + " not found",
		Origin:  origin,
	}
}

func NewUnauthorizedError(reason string) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "Unauthorized: " + reason,
	}
}

func NewStorageError(op string, originalErr error) *AppError {
	return &AppError{
		Code:    ErrStorageUnavailable,
		Message: "Storage unavailable during " + op,
		Origin:  originalErr,
	}
}

func NewActorTimeoutError(actorName string, origin error) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
		Origin:  origin,
	}
}

// IsErrorCode reports whether any AppError in err's chain carries code.
func IsErrorCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// ErrorCode returns the code of the outermost AppError in err's chain.
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// UserMessage returns text that is safe to show next to the action that
// failed. Storage and unknown failures collapse to a generic line.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return genericFailureMessage
	}
	switch appErr.Code {
	case ErrStorageUnavailable, ErrActorTimeout, ErrNotFound, ErrDuplicate:
		return genericFailureMessage
	}
	return appErr.Message
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound, ErrProfileNotFound, ErrRecipientNotFound, ErrConversationNotFound:
		return 404 // http.StatusNotFound
	case ErrInvalidInput, ErrInvalidUsername, ErrEmptyMessageBody, ErrSelfConversation:
		return 400 // http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidToken, ErrInvalidCredentials:
		return 401 // http.StatusUnauthorized
	case ErrNotAMember:
		return 403 // http.StatusForbidden
	case ErrDuplicate, ErrUsernameTaken, ErrEmailTaken:
		return 409 // http.StatusConflict
	case ErrStorageUnavailable:
		return 503 // http.StatusServiceUnavailable
	case ErrActorTimeout:
		return 504 // http.StatusGatewayTimeout
	default:
		return 500 // http.StatusInternalServerError for unknown errors
	}
}
