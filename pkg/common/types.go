package common

import (
	"net/http"
)

// Middleware is a function that wraps an http.Handler.
// It can act before the request is forwarded and after the inner handler
// has produced its response. Middleware composes through MiddlewareChain.
type Middleware func(http.Handler) http.Handler
