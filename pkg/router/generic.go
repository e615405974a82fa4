package router

import (
	"errors"
	"net/http"

	"github.com/Suhaibinator/sayhi/pkg/codec"
	"go.uber.org/zap"
)

// NewGenericHandler adapts a GenericHandler to http.Handler: it decodes the
// request with c, calls handler and encodes the result. Decode, handler and
// encode failures all go through the error pathway. It is exported so other
// routers can serve generic handlers the same way.
func NewGenericHandler[T any, U any](c Codec[T, U], handler GenericHandler[T, U], logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		data, err := c.Decode(req)
		if err != nil {
			status, message := decodeErrorStatus(err)
			handleError(logger, w, req, err, status, message)
			return
		}

		resp, err := handler(req, data)
		if err != nil {
			handleError(logger, w, req, err, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		if err := c.Encode(w, resp); err != nil {
			handleError(logger, w, req, err, http.StatusInternalServerError, "Failed to encode response")
		}
	})
}

func decodeErrorStatus(err error) (int, string) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge, "Request Entity Too Large"
	case errors.Is(err, codec.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, "Unsupported Media Type"
	default:
		return http.StatusBadRequest, "Failed to decode request"
	}
}
