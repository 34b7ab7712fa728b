package client

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrQuotaExhausted is returned when the server-reported request quota is
// used up and the request was not sent.
var ErrQuotaExhausted = errors.New("unsplash quota exhausted")

// ErrResponseTooLarge is wrapped in a DecodeError when a body exceeds its cap.
var ErrResponseTooLarge = errors.New("response body exceeds size limit")

// ErrorClass represents a classification of client errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses and local quota blocks.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents connectivity and timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents undecodable payloads.
	ErrorClassDecode ErrorClass = "decode"
)

// TransportError is a failure to reach the server or read its response.
type TransportError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// InvalidResponseError is a non-2xx HTTP response.
type InvalidResponseError struct {
	StatusCode int
	Message    string
}

// NewInvalidResponseError builds the error for a status code with its
// user-facing message.
func NewInvalidResponseError(statusCode int) *InvalidResponseError {
	return &InvalidResponseError{
		StatusCode: statusCode,
		Message:    statusMessage(statusCode),
	}
}

// Error implements the error interface. The message is meant for display.
func (e *InvalidResponseError) Error() string {
	return e.Message
}

// Class returns the error classification for the status code.
func (e *InvalidResponseError) Class() ErrorClass {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case e.StatusCode >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// HostNotAllowedError is an image URL outside the allowed hosts. No request
// was sent.
type HostNotAllowedError struct {
	URL  string
	Host string
}

// Error implements the error interface.
func (e *HostNotAllowedError) Error() string {
	if e.Host == "" {
		return fmt.Sprintf("image url %q is not allowed", e.URL)
	}
	return fmt.Sprintf("image host %q is not allowed", e.Host)
}

// DecodeError is a response body that could not be decoded.
type DecodeError struct {
	What string // "search response", "image"
	Err  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s: %v", e.What, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Classify maps an error returned by the client to its class.
// Errors not produced by the client return "".
func Classify(err error) ErrorClass {
	var (
		invalid   *InvalidResponseError
		transport *TransportError
		decode    *DecodeError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExhausted):
		return ErrorClassRateLimit
	case errors.As(err, &invalid):
		return invalid.Class()
	case errors.As(err, &transport):
		return ErrorClassNetwork
	case errors.As(err, &decode):
		return ErrorClassDecode
	default:
		return ""
	}
}

func statusMessage(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "Bad Request: The request was unacceptable, often due to missing a required parameter"
	case http.StatusUnauthorized:
		return "Unauthorized: Invalid Access Token"
	case http.StatusForbidden:
		return "Forbidden: Missing permissions to perform request"
	case http.StatusNotFound:
		return "Not Found: The requested resource doesn't exist"
	case http.StatusTooManyRequests:
		return "Rate Limit Exceeded: Too many requests"
	case http.StatusInternalServerError, http.StatusServiceUnavailable:
		return "Server Error: Something went wrong on our end"
	default:
		return fmt.Sprintf("HTTP Error: Received status code %d", statusCode)
	}
}
