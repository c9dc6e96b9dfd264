package errors

import "errors"

// ErrorType classifies application errors so the REST layer can map them to
// HTTP statuses without inspecting error strings
type ErrorType string

const (
	NotFound            ErrorType = "NotFound"
	ValidationError     ErrorType = "ValidationError"
	RepositoryError     ErrorType = "RepositoryError"
	NotAuthenticated    ErrorType = "NotAuthenticated"
	NotAuthorized       ErrorType = "NotAuthorized"
	QuotaExceeded       ErrorType = "QuotaExceeded"
	IllegalTransition   ErrorType = "IllegalTransition"
	UnknownError        ErrorType = "UnknownError"
)

const (
	notFoundMessage          = "record not found"
	validationErrorMessage   = "validation error"
	repositoryErrorMessage   = "error in repository operation"
	notAuthenticatedMessage  = "not authenticated"
	notAuthorizedMessage     = "not authorized"
	quotaExceededMessage     = "message quota exceeded"
	illegalTransitionMessage = "illegal status transition"
	unknownErrorMessage      = "something went wrong"
)

// AppError wraps an underlying error with its classification
type AppError struct {
	Err  error
	Type ErrorType
}

func (appErr *AppError) Error() string {
	return appErr.Err.Error()
}

func (appErr *AppError) Unwrap() error {
	return appErr.Err
}

// NewAppError creates an AppError with an explicit underlying error
func NewAppError(err error, errType ErrorType) *AppError {
	return &AppError{
		Err:  err,
		Type: errType,
	}
}

// NewAppErrorWithType creates an AppError carrying the default message for its type
func NewAppErrorWithType(errType ErrorType) *AppError {
	var err error

	switch errType {
	case NotFound:
		err = errors.New(notFoundMessage)
	case ValidationError:
		err = errors.New(validationErrorMessage)
	case RepositoryError:
		err = errors.New(repositoryErrorMessage)
	case NotAuthenticated:
		err = errors.New(notAuthenticatedMessage)
	case NotAuthorized:
		err = errors.New(notAuthorizedMessage)
	case QuotaExceeded:
		err = errors.New(quotaExceededMessage)
	case IllegalTransition:
		err = errors.New(illegalTransitionMessage)
	default:
		err = errors.New(unknownErrorMessage)
	}

	return &AppError{
		Err:  err,
		Type: errType,
	}
}

// TypeOf returns the classification of err, or UnknownError when err is not
// an AppError
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return UnknownError
}
