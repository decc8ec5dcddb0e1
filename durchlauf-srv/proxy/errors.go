package proxy

import (
	"fmt"
)

// Outcome classifies a finished connection for logging and metrics.
type Outcome string

const (
	OutcomeAllowed Outcome = "ALLOWED"
	OutcomeBlocked Outcome = "BLOCKED"
	OutcomeError   Outcome = "ERROR"
	OutcomeTimeout Outcome = "TIMEOUT"
	OutcomeRefused Outcome = "REFUSED"
)

// Error represents a proxy-specific error with a code and description
type Error struct {
	Code        string
	Description string
	Cause       error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Description, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewProxyError creates a new Error with the given code and description
func NewProxyError(code, description string, cause error) *Error {
	return &Error{
		Code:        code,
		Description: description,
		Cause:       cause,
	}
}

// Proxy error codes
const (
	// Request parsing errors (E1000-E1999)
	ErrCodeRequestLineMalformed = "E1001"
	ErrCodeMissingHost          = "E1002"
	ErrCodeInvalidPort          = "E1003"
	ErrCodeHeadersTooLarge      = "E1004"

	// Connection and network errors (E2000-E2999)
	ErrCodeDialFailed         = "E2001"
	ErrCodeConnectionRefused  = "E2002"
	ErrCodeConnectionTimeout  = "E2003"
	ErrCodeSOCKS5DialerFailed = "E2004"
	ErrCodeSOCKS5DialFailed   = "E2005"

	// Transfer errors (E3000-E3999)
	ErrCodeUpstreamWriteFailed = "E3001"
	ErrCodeClientWriteFailed   = "E3002"
	ErrCodeTransferFailed      = "E3003"
)

// ErrorDescriptions maps error codes to human-readable descriptions.
var ErrorDescriptions = map[string]string{
	ErrCodeRequestLineMalformed: "Malformed HTTP request line",
	ErrCodeMissingHost:          "Request host could not be determined",
	ErrCodeInvalidPort:          "Invalid destination port",
	ErrCodeHeadersTooLarge:      "Request headers exceed the configured limit",
	ErrCodeDialFailed:           "Failed to connect to upstream server",
	ErrCodeConnectionRefused:    "Upstream server refused the connection",
	ErrCodeConnectionTimeout:    "Upstream connection timed out",
	ErrCodeSOCKS5DialerFailed:   "Failed to create SOCKS5 dialer",
	ErrCodeSOCKS5DialFailed:     "Failed to connect via SOCKS5 upstream",
	ErrCodeUpstreamWriteFailed:  "Failed to write to upstream server",
	ErrCodeClientWriteFailed:    "Failed to write to client",
	ErrCodeTransferFailed:       "Data transfer failed",
}

// GetErrorDescription returns the description for an error code.
func GetErrorDescription(code string) string {
	if desc, ok := ErrorDescriptions[code]; ok {
		return desc
	}
	return "Unknown error"
}

// newParseError builds a parse failure with the given code.
func newParseError(code string, cause error) *Error {
	return NewProxyError(code, GetErrorDescription(code), cause)
}

// IsParseError reports whether err is a request parsing failure.
func IsParseError(err error) bool {
	proxyErr, ok := err.(*Error)
	if !ok {
		return false
	}
	switch proxyErr.Code {
	case ErrCodeRequestLineMalformed, ErrCodeMissingHost, ErrCodeInvalidPort, ErrCodeHeadersTooLarge:
		return true
	}
	return false
}
