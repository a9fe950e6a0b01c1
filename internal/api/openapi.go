// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/oasdiff/yaml"
)

//go:embed openapi.yaml
var openapiSpec []byte

// StreamsAPI is the stream surface described by openapi.yaml. Method names
// follow the operation ids.
type StreamsAPI interface {
	ListStreams(w http.ResponseWriter, r *http.Request)
	GetStream(w http.ResponseWriter, r *http.Request, id string)
	StopStream(w http.ResponseWriter, r *http.Request, id string)
	RetryStream(w http.ResponseWriter, r *http.Request, id string)
	ListStreamEvents(w http.ResponseWriter, r *http.Request, id string, params ListStreamEventsParams)
}

// ListStreamEventsParams are the query parameters of listStreamEvents.
type ListStreamEventsParams struct {
	Limit *int
}

type contract struct {
	doc    *openapi3.T
	router routers.Router
	json   []byte
}

var loadContract = sync.OnceValues(func() (*contract, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build openapi router: %w", err)
	}
	asJSON, err := yaml.YAMLToJSON(openapiSpec)
	if err != nil {
		return nil, fmt.Errorf("convert openapi document: %w", err)
	}
	return &contract{doc: doc, router: router, json: asJSON}, nil
})

// OpenAPI returns the parsed and validated API document.
func OpenAPI() (*openapi3.T, error) {
	c, err := loadContract()
	if err != nil {
		return nil, err
	}
	return c.doc, nil
}

func mustContract() *contract {
	c, err := loadContract()
	if err != nil {
		// The document is compiled in; a broken one is a build defect.
		panic(err)
	}
	return c
}

// validateRequests rejects requests that break the documented parameters.
// Paths the document does not describe pass through untouched.
func validateRequests(c *contract) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, params, err := c.router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: params,
				Route:      route,
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func serveOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapiSpec)
}

func serveOpenAPIJSON(c *contract) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(c.json)
	}
}

// streamBinder decodes operation parameters and dispatches to a StreamsAPI.
type streamBinder struct {
	api StreamsAPI
}

func (b streamBinder) listStreams(w http.ResponseWriter, r *http.Request) {
	b.api.ListStreams(w, r)
}

func (b streamBinder) getStream(w http.ResponseWriter, r *http.Request) {
	if id, ok := bindStreamID(w, r); ok {
		b.api.GetStream(w, r, id)
	}
}

func (b streamBinder) stopStream(w http.ResponseWriter, r *http.Request) {
	if id, ok := bindStreamID(w, r); ok {
		b.api.StopStream(w, r, id)
	}
}

func (b streamBinder) retryStream(w http.ResponseWriter, r *http.Request) {
	if id, ok := bindStreamID(w, r); ok {
		b.api.RetryStream(w, r, id)
	}
}

func (b streamBinder) listStreamEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := bindStreamID(w, r)
	if !ok {
		return
	}
	var params ListStreamEventsParams
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &params.Limit); err != nil {
		writeError(w, r, fmt.Errorf("%w: limit: %v", errBadRequest, err))
		return
	}
	b.api.ListStreamEvents(w, r, id, params)
}

func bindStreamID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: id: %v", errBadRequest, err))
		return "", false
	}
	return id, true
}
