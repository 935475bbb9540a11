package lbErrors

import "fmt"

// TokenExpiredCode is the numeric code the vendor places in an otherwise
// successful JSON body when the lctoken has expired.
const TokenExpiredCode = 32

// Envelope is the error shape the vendor embeds in a 2xx response body
// when a call fails logically. Code is a json.Number-ish string because
// the vendor sends it as a string on login failures and as a number on
// token expiry.
type Envelope struct {
	Code        any    `json:"error"`
	Description string `json:"description"`
}

// Present reports whether the body carried an error at all.
func (e Envelope) Present() bool {
	return e.Code != nil
}

// TokenExpired reports whether the carried code is the token-expiry code.
func (e Envelope) TokenExpired() bool {
	switch v := e.Code.(type) {
	case float64:
		return int(v) == TokenExpiredCode
	case string:
		return v == fmt.Sprint(TokenExpiredCode)
	}
	return false
}

// AuthenticationError means the credentials were rejected at login.
// User-correctable, never retried automatically.
type AuthenticationError struct {
	Code        string
	Description string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %s", e.Code, e.Description)
}

// TokenError means the session token has expired or was invalidated
// server side. Recovered by a fresh login.
type TokenError struct {
	Description string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("session token expired: %s", e.Description)
}

// CommunicationError covers transport failures, non-2xx statuses and
// unparsable bodies. Retryable on the caller's cadence.
type CommunicationError struct {
	Status      int
	Description string
	Err         error
}

func (e *CommunicationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("communication error (status %d): %s: %v", e.Status, e.Description, e.Err)
	}
	return fmt.Sprintf("communication error (status %d): %s", e.Status, e.Description)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// APIError is any other logical error the vendor reports inside a 2xx
// body. Retryable, logged with the full body for diagnosis.
type APIError struct {
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%s): %s", e.Code, e.Description)
}
