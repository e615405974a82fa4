// Package codec provides the request decoders and response encoders used by generic routes.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

var (
	// ErrUnsupportedMediaType is returned when a request body is not declared as JSON
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrEmptyBody is returned when a JSON request has no body
	ErrEmptyBody = errors.New("empty request body")
)

// JSONCodec is a codec that uses JSON for marshaling and unmarshaling.
type JSONCodec[T any, U any] struct {
	// DisallowUnknownFields rejects request objects with fields T does not declare
	DisallowUnknownFields bool
}

// NewJSONCodec creates a new JSONCodec instance for the specified types.
// T represents the request type and U represents the response type.
func NewJSONCodec[T any, U any]() *JSONCodec[T, U] {
	return &JSONCodec[T, U]{}
}

// Decode decodes the request body into a value of type T.
// A Content-Type other than application/json (or a +json suffix) is rejected;
// a missing Content-Type is accepted.
func (c *JSONCodec[T, U]) Decode(r *http.Request) (T, error) {
	var data T

	if ct := r.Header.Get("Content-Type"); ct != "" && !isJSON(ct) {
		return data, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, ct)
	}
	if r.Body == nil {
		return data, ErrEmptyBody
	}
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return data, fmt.Errorf("read request body: %w", err)
	}
	if len(body) == 0 {
		return data, ErrEmptyBody
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	if c.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(&data); err != nil {
		return data, fmt.Errorf("decode json: %w", err)
	}
	return data, nil
}

// Encode encodes a value of type U into the response.
func (c *JSONCodec[T, U]) Encode(w http.ResponseWriter, resp U) error {
	body, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(body)
	return err
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}
