package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

// Param extracts a path parameter by key and returns its string value.
func Param(r *http.Request, key string) (string, error) {
	val := r.PathValue(key)
	if val == "" {
		return "", fmt.Errorf("path param[%s] not found", key)
	}

	return val, nil
}

// ParamUUID extracts a path parameter by key and parses it as a uuid.
func ParamUUID(r *http.Request, key string) (uuid.UUID, error) {
	val, err := Param(r, key)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("path param[%s] must be a uuid: %w", key, err)
	}

	return id, nil
}

// QueryString returns the query parameter key, or "" when absent.
func QueryString(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// Decode reads a JSON document from the request body into val, rejecting
// unknown fields, and validates it against its struct tags.
func Decode[T any](r *http.Request, val *T) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	return Validate(val)
}
