// Package parser turns raw trace text into a validated models.DurableTrace.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"traceviz/internal/models"
)

// Kind classifies why a document was rejected.
type Kind int

const (
	KindMalformedJSON Kind = iota + 1
	KindSchemaMismatch
)

func (k Kind) String() string {
	switch k {
	case KindMalformedJSON:
		return "malformed_json"
	case KindSchemaMismatch:
		return "schema_mismatch"
	default:
		return "unknown"
	}
}

var (
	// ErrMalformedJSON matches errors for text that is not JSON at all.
	ErrMalformedJSON = errors.New("malformed json")
	// ErrSchemaMismatch matches errors for JSON that does not describe a trace.
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// ParseError carries the diagnostic for a rejected document.
type ParseError struct {
	Kind    Kind
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match a ParseError against ErrMalformedJSON and ErrSchemaMismatch.
func (e *ParseError) Is(target error) bool {
	switch target {
	case ErrMalformedJSON:
		return e.Kind == KindMalformedJSON
	case ErrSchemaMismatch:
		return e.Kind == KindSchemaMismatch
	}
	return false
}

// Parse validates text and returns the trace it describes.
func Parse(text string) (models.DurableTrace, error) {
	return ParseBytes([]byte(text))
}

// ParseBytes is Parse for a byte slice.
func ParseBytes(data []byte) (models.DurableTrace, error) {
	if !json.Valid(data) {
		return models.DurableTrace{}, &ParseError{Kind: KindMalformedJSON, Message: syntaxMessage(data)}
	}

	if err := checkFieldNames(data); err != nil {
		return models.DurableTrace{}, &ParseError{Kind: KindSchemaMismatch, Message: err.Error()}
	}

	var raw wireTrace
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.DurableTrace{}, &ParseError{Kind: KindSchemaMismatch, Message: typeMessage(err)}
	}

	trace, err := raw.toModel()
	if err != nil {
		return models.DurableTrace{}, &ParseError{Kind: KindSchemaMismatch, Message: err.Error()}
	}
	return trace, nil
}

// Marshal serialises a trace in the same format Parse accepts.
func Marshal(trace models.DurableTrace) ([]byte, error) {
	if trace.Steps == nil {
		trace.Steps = []models.StepTrace{}
	}
	data, err := json.Marshal(trace)
	if err != nil {
		return nil, fmt.Errorf("encode trace: %w", err)
	}
	return data, nil
}

func syntaxMessage(data []byte) string {
	var probe any
	err := json.Unmarshal(data, &probe)
	var syntaxErr *json.SyntaxError
	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("%s (offset %d)", syntaxErr.Error(), syntaxErr.Offset)
	case err != nil:
		return err.Error()
	default:
		return "invalid json"
	}
}

func typeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("field %q: expected %s, got json %s", typeErr.Field, typeErr.Type, typeErr.Value)
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		return fmt.Sprintf("invalid timestamp %q", timeErr.Value)
	}
	return err.Error()
}
