// Package gwerr is the gateway's uniform error taxonomy. Every error that can
// reach a caller is, or is wrapped into, an *Error so transport can render it
// in either the OpenAI or Anthropic error dialect without guessing.
package gwerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a taxonomy error code, stable across dialects.
type Code string

const (
	CodeInvalidBody          Code = "invalid_body"
	CodeValidationError      Code = "validation_error"
	CodeInvalidRequest       Code = "invalid_request"
	CodeUnsupportedParameter Code = "unsupported_parameter"
	CodeUnknownEndpoint      Code = "unknown_endpoint"
	CodeUnauthorized         Code = "unauthorized"
	CodeMissingAPIKey        Code = "missing_api_key"
	CodeInvalidAPIKey        Code = "invalid_api_key"
	CodeKeyInactive          Code = "key_inactive"
	CodeModelNotFound        Code = "model_not_found"
	CodeRateLimitExceeded    Code = "rate_limit_exceeded"
	CodeProviderError        Code = "provider_error"
	CodeAllProvidersFailed   Code = "all_providers_failed"
)

// Type is the wire-level error family ("invalid_request_error", etc).
type Type string

const (
	TypeInvalidRequest Type = "invalid_request_error"
	TypeRateLimit      Type = "rate_limit_error"
	TypeServerError    Type = "server_error"
)

type taxonomyEntry struct {
	status int
	typ    Type
}

var taxonomy = map[Code]taxonomyEntry{
	CodeInvalidBody:          {http.StatusBadRequest, TypeInvalidRequest},
	CodeValidationError:      {http.StatusBadRequest, TypeInvalidRequest},
	CodeInvalidRequest:       {http.StatusBadRequest, TypeInvalidRequest},
	CodeUnsupportedParameter: {http.StatusBadRequest, TypeInvalidRequest},
	CodeUnknownEndpoint:      {http.StatusNotFound, TypeInvalidRequest},
	CodeUnauthorized:         {http.StatusUnauthorized, TypeInvalidRequest},
	CodeMissingAPIKey:        {http.StatusUnauthorized, TypeInvalidRequest},
	CodeInvalidAPIKey:        {http.StatusUnauthorized, TypeInvalidRequest},
	CodeKeyInactive:          {http.StatusForbidden, TypeInvalidRequest},
	CodeModelNotFound:        {http.StatusNotFound, TypeInvalidRequest},
	CodeRateLimitExceeded:    {http.StatusTooManyRequests, TypeRateLimit},
	CodeProviderError:        {http.StatusBadGateway, TypeServerError},
	CodeAllProvidersFailed:   {http.StatusBadGateway, TypeServerError},
}

// Error is the gateway's uniform error value.
type Error struct {
	Code       Code
	Type       Type
	Message    string
	HTTPStatus int
	Retryable  bool
	Param      string
	Provider   string
	Cause      error
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error, filling status/type from the taxonomy table unless
// already set.
func New(code Code, message string) *Error {
	e := &Error{Code: code, Message: message}
	if entry, ok := taxonomy[code]; ok {
		e.HTTPStatus = entry.status
		e.Type = entry.typ
	} else {
		e.HTTPStatus = http.StatusInternalServerError
		e.Type = TypeServerError
	}
	return e
}

func (e *Error) WithCause(err error) *Error    { e.Cause = err; return e }
func (e *Error) WithParam(param string) *Error { e.Param = param; return e }
func (e *Error) WithProvider(p string) *Error  { e.Provider = p; return e }
func (e *Error) WithRetryable(r bool) *Error    { e.Retryable = r; return e }
func (e *Error) WithHTTPStatus(s int) *Error   { e.HTTPStatus = s; return e }

// As reports whether err is (or wraps) a *Error and returns it.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// IsRetryable reports whether err is a retryable gateway error.
func IsRetryable(err error) bool {
	ge, ok := As(err)
	return ok && ge.Retryable
}

// OpenAIBody is the OpenAI-dialect error envelope: {error:{message,type,code,param?}}.
type OpenAIBody struct {
	Error OpenAIError `json:"error"`
}

type OpenAIError struct {
	Message string `json:"message"`
	Type    Type   `json:"type"`
	Code    Code   `json:"code"`
	Param   string `json:"param,omitempty"`
}

// RenderOpenAI renders err (any error) into the OpenAI error envelope plus
// the HTTP status it should be served with.
func RenderOpenAI(err error) (int, OpenAIBody) {
	ge, ok := As(err)
	if !ok {
		ge = New(CodeProviderError, err.Error())
	}
	return ge.HTTPStatus, OpenAIBody{Error: OpenAIError{
		Message: ge.Message,
		Type:    ge.Type,
		Code:    ge.Code,
		Param:   ge.Param,
	}}
}

// AnthropicBody is the Anthropic-dialect error envelope: {type:"error", error:{type,message}}.
type AnthropicBody struct {
	Type  string             `json:"type"`
	Error AnthropicErrorInfo `json:"error"`
}

type AnthropicErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// RenderAnthropic renders err into the Anthropic error envelope plus the
// HTTP status it should be served with.
func RenderAnthropic(err error) (int, AnthropicBody) {
	ge, ok := As(err)
	if !ok {
		ge = New(CodeProviderError, err.Error())
	}
	return ge.HTTPStatus, AnthropicBody{
		Type: "error",
		Error: AnthropicErrorInfo{
			Type:    string(ge.Type),
			Message: ge.Message,
		},
	}
}

// MapUpstreamStatus maps an upstream HTTP status (from a provider adapter)
// into a gateway Code, per spec §7's propagation table.
func MapUpstreamStatus(status int, message, provider string) *Error {
	switch {
	case status == 401 || status == 403:
		return New(CodeInvalidAPIKey, message).WithProvider(provider).WithHTTPStatus(401)
	case status == 429:
		return New(CodeRateLimitExceeded, message).WithProvider(provider).WithRetryable(true)
	case status == 400:
		return New(CodeInvalidRequest, message).WithProvider(provider)
	case status == 404:
		return New(CodeModelNotFound, message).WithProvider(provider)
	case status >= 500:
		return New(CodeProviderError, message).WithProvider(provider).WithHTTPStatus(502).WithRetryable(true)
	default:
		return New(CodeProviderError, message).WithProvider(provider).WithHTTPStatus(status)
	}
}
