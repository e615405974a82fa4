// Package app holds the tutorial endpoints and builds them into a server on
// either routing stack.
package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/Suhaibinator/sayhi/pkg/router"
)

// ParamFunc reads a path parameter. Each routing stack supplies its own.
type ParamFunc func(r *http.Request, name string) string

// CreateRecord is the body of POST /record/create
type CreateRecord struct {
	Name string `json:"name"`
}

// RecordCreated is the response of POST /record/create
type RecordCreated struct {
	ID   uint64    `json:"id"`
	Name string    `json:"name"`
	TS   time.Time `json:"ts"`
}

// TryBody is both the body and the successful response of POST /try
type TryBody struct {
	Success bool `json:"success"`
}

// QueryParams is decoded from the query string of GET /query.
// Page and PerPage are pointers so an absent value can take its default.
type QueryParams struct {
	Name    string `query:"name"`
	Page    *int   `query:"page"`
	PerPage *int   `query:"per_page"`
}

// QueryResult echoes QueryParams with defaults applied
type QueryResult struct {
	Name    string `json:"name"`
	Page    int    `json:"page"`
	PerPage int    `json:"per_page"`
}

const (
	recordID       = 1234
	defaultPage    = 1
	defaultPerPage = 10
	maxPerPage     = 100
)

// Handlers implements the tutorial endpoints.
type Handlers struct {
	state *AppState
	param ParamFunc

	// now stamps created records; replaced in tests
	now func() time.Time
}

// NewHandlers creates Handlers sharing state. param reads path parameters
// for the routing stack the handlers are mounted on.
func NewHandlers(state *AppState, param ParamFunc) *Handlers {
	return &Handlers{
		state: state,
		param: param,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Greet handles GET /hello/{name}
func (h *Handlers) Greet(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Hello %s!", h.param(r, "name"))
}

// Count handles GET /count
func (h *Handlers) Count(w http.ResponseWriter, r *http.Request) {
	n := h.state.Increment()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Hello, count: %d", n)
}

// CreateRecord handles POST /record/create
func (h *Handlers) CreateRecord(r *http.Request, req CreateRecord) (RecordCreated, error) {
	return RecordCreated{
		ID:   recordID,
		Name: req.Name,
		TS:   h.now(),
	}, nil
}

// Try handles POST /try. It echoes a successful body and rejects the rest.
func (h *Handlers) Try(r *http.Request, body TryBody) (TryBody, error) {
	if !body.Success {
		return TryBody{}, router.ErrorBadRequest("request failed")
	}
	return body, nil
}

// Query handles GET /query
func (h *Handlers) Query(r *http.Request, params QueryParams) (QueryResult, error) {
	if params.Name == "" {
		return QueryResult{}, router.ErrorBadRequest("name is required")
	}

	result := QueryResult{Name: params.Name, Page: defaultPage, PerPage: defaultPerPage}
	if params.Page != nil {
		if *params.Page < 1 {
			return QueryResult{}, router.ErrorBadRequest("page must be at least 1")
		}
		result.Page = *params.Page
	}
	if params.PerPage != nil {
		if *params.PerPage < 1 || *params.PerPage > maxPerPage {
			return QueryResult{}, router.ErrorBadRequest(fmt.Sprintf("per_page must be between 1 and %d", maxPerPage))
		}
		result.PerPage = *params.PerPage
	}
	return result, nil
}
