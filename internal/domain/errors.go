package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when the shop domain or client id is missing
	ErrConfiguration = errors.New("customer account configuration is incomplete")

	// ErrPKCENotFound means the callback arrived without a login started in this session
	ErrPKCENotFound = errors.New("authentication parameters not found; please log in again")

	// ErrStateMismatch means the callback state does not match the stored one
	ErrStateMismatch = errors.New("invalid request")

	// ErrUnauthorized is the resource server rejecting the access token (HTTP 401)
	ErrUnauthorized = errors.New("unauthorized")

	// ErrSessionExpired means the token could not be refreshed and the customer was logged out
	ErrSessionExpired = errors.New("session expired, please log in again")

	// ErrNotAuthenticated means the operation needs a logged-in customer
	ErrNotAuthenticated = errors.New("not authenticated")
)

// TransportError is a non-2xx response from the token or resource endpoint
type TransportError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: status %d, body: %s", e.Operation, e.StatusCode, e.Body)
}

// GraphQLError is an errors array returned with an otherwise successful response
type GraphQLError struct {
	Operation string
	Payload   string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("%s returned GraphQL errors: %s", e.Operation, e.Payload)
}

// UserError wraps the first userErrors entry of a mutation payload
type UserError struct {
	Operation string
	Detail    UserErrorDetail
}

func (e *UserError) Error() string {
	return e.Detail.Message
}

// User-facing messages
const (
	MsgLoginFailed      = "We couldn't sign you in. Please try again."
	MsgConfiguration    = "Customer accounts are temporarily unavailable."
	MsgNotAuthenticated = "Please log in to continue."
	MsgGeneric          = "Something went wrong. Please try again."
)

// UserMessage converts any error into a short message safe to show to a customer.
// Protocol detail stays in the logs.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var userErr *UserError
	if errors.As(err, &userErr) && userErr.Detail.Message != "" {
		return userErr.Detail.Message
	}

	switch {
	case errors.Is(err, ErrPKCENotFound):
		return ErrPKCENotFound.Error()
	case errors.Is(err, ErrStateMismatch):
		return ErrStateMismatch.Error()
	case errors.Is(err, ErrSessionExpired):
		return ErrSessionExpired.Error()
	case errors.Is(err, ErrNotAuthenticated):
		return MsgNotAuthenticated
	case errors.Is(err, ErrConfiguration):
		return MsgConfiguration
	}
	return MsgGeneric
}
