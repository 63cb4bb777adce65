package remote

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is a failure answered by the remote service.
type Error struct {
	Status int
	Body   []byte
}

func (e *Error) Error() string {
	if odata, err := ParseODataError(e.Body); err == nil {
		return fmt.Sprintf("remote: status %d: %s: %s", e.Status, odata.Code, odata.Message)
	}
	return fmt.Sprintf("remote: status %d", e.Status)
}

// ODataError is the structured error of a service response.
type ODataError struct {
	Code    string
	Message string
}

type odataContent struct {
	Code    string `json:"code"`
	Message struct {
		Lang  string `json:"lang"`
		Value string `json:"value"`
	} `json:"message"`
}

// ParseODataError decodes {"odata.error":{...}} and {"error":{...}} bodies.
func ParseODataError(body []byte) (*ODataError, error) {
	if len(body) == 0 {
		return nil, errors.New("empty error body")
	}
	var envelope struct {
		OData *odataContent `json:"odata.error"`
		Plain *odataContent `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("parse error body: %w", err)
	}
	content := envelope.OData
	if content == nil {
		content = envelope.Plain
	}
	if content == nil {
		return nil, errors.New("no error object in body")
	}
	return &ODataError{Code: content.Code, Message: content.Message.Value}, nil
}

// NewODataError builds an *Error with an {"odata.error":{...}} body.
func NewODataError(status int, code, message string) *Error {
	var content odataContent
	content.Code = code
	content.Message.Lang = "en-US"
	content.Message.Value = message
	body, _ := json.Marshal(map[string]any{"odata.error": content})
	return &Error{Status: status, Body: body}
}

// AsError extracts a remote *Error from the chain.
func AsError(err error) (*Error, bool) {
	var re *Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
