package stools

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes caps request bodies at 1MB. Decision payloads top out well
// below this even with maximum-length messages.
const maxBodyBytes = 1 << 20

// DecodeError is a client-side request body problem. TooLarge distinguishes
// oversized bodies so handlers can return 413 instead of 400.
type DecodeError struct {
	Message  string
	TooLarge bool
}

func (e *DecodeError) Error() string { return e.Message }

// DecodeJSONBody decodes a JSON request body into dst, rejecting unknown
// fields, trailing documents, and bodies over the size cap. All
// client-attributable failures come back as *DecodeError.
func DecodeJSONBody(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/json") {
		return &DecodeError{Message: "Content-Type header is not application/json"}
	}

	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxError *json.SyntaxError
		var typeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError
		switch {
		case errors.As(err, &syntaxError):
			return &DecodeError{Message: fmt.Sprintf("request body contains malformed JSON (at position %d)", syntaxError.Offset)}
		case errors.Is(err, io.ErrUnexpectedEOF):
			return &DecodeError{Message: "request body contains malformed JSON"}
		case errors.As(err, &typeError):
			return &DecodeError{Message: fmt.Sprintf("request body contains an invalid value for the %q field (at position %d)", typeError.Field, typeError.Offset)}
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return &DecodeError{Message: fmt.Sprintf("request body contains unknown field %s", field)}
		case errors.Is(err, io.EOF):
			return &DecodeError{Message: "request body must not be empty"}
		case errors.As(err, &maxBytesError):
			return &DecodeError{Message: "request body must not be larger than 1MB", TooLarge: true}
		default:
			return fmt.Errorf("error decoding JSON: %w", err)
		}
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return &DecodeError{Message: "request body must only contain a single JSON object"}
	}
	return nil
}
