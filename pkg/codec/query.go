package codec

import (
	"fmt"
	"net/http"

	"github.com/mitchellh/mapstructure"
)

// QueryCodec decodes the URL query string into T and encodes U as JSON.
// Fields of T are matched by their `query` tag. Values are converted weakly,
// so "2" decodes into an int and "true" into a bool.
type QueryCodec[T any, U any] struct {
	// ErrorUnused rejects query parameters T does not declare
	ErrorUnused bool

	json JSONCodec[T, U]
}

// NewQueryCodec creates a new QueryCodec instance for the specified types.
func NewQueryCodec[T any, U any]() *QueryCodec[T, U] {
	return &QueryCodec[T, U]{}
}

// Decode decodes the request's query parameters into a value of type T.
// A parameter repeated several times decodes into a slice field; into a
// scalar field it is an error.
func (c *QueryCodec[T, U]) Decode(r *http.Request) (T, error) {
	var data T

	query := r.URL.Query()
	input := make(map[string]interface{}, len(query))
	for key, values := range query {
		if len(values) == 1 {
			input[key] = values[0]
		} else {
			input[key] = values
		}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &data,
		TagName:          "query",
		WeaklyTypedInput: true,
		ErrorUnused:      c.ErrorUnused,
	})
	if err != nil {
		return data, err
	}
	if err := decoder.Decode(input); err != nil {
		return data, fmt.Errorf("decode query: %w", err)
	}
	return data, nil
}

// Encode encodes a value of type U into the response as JSON.
func (c *QueryCodec[T, U]) Encode(w http.ResponseWriter, resp U) error {
	return c.json.Encode(w, resp)
}
