// Package server is the opsline reference backend: the authoritative,
// multi-writer store behind the remote adapter boundary. It serves
// generic record CRUD per collection plus the change feed subscribers
// poll.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"opsline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Repo     repo.Repo
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"record not found"`
	Details map[string]any `json:"details,omitempty"`
}

type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the opsline remote store API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Opsline Store API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerCollections(group, cfg.Repo)
	registerChanges(group, cfg.Repo)
	if cfg.Auth.DevAuth {
		registerDevAuth(group, cfg.Auth)
	}

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
}

func requireCollection(name string) huma.StatusError {
	if !repo.ValidCollection(name) {
		return newAPIError(http.StatusNotFound, "unknown_collection", "unknown collection "+name, nil)
	}
	return nil
}

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

type listRecordsInput struct {
	Collection string   `path:"collection"`
	Filter     []string `query:"filter" doc:"field:value equality filters on payload fields"`
}

type recordsOutput struct {
	Body struct {
		Records []json.RawMessage `json:"records"`
	}
}

type recordOutput struct {
	Body struct {
		Record json.RawMessage `json:"record"`
	}
}

type createRecordInput struct {
	Collection string `path:"collection"`
	RawBody    []byte `contentType:"application/json"`
}

type updateRecordInput struct {
	Collection string `path:"collection"`
	ID         string `path:"id"`
	RawBody    []byte `contentType:"application/json"`
}

type deleteRecordInput struct {
	Collection string `path:"collection"`
	ID         string `path:"id"`
}

func registerCollections(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-records",
		Method:      http.MethodGet,
		Path:        "/collections/{collection}",
		Summary:     "List records in a collection",
	}, func(ctx context.Context, in *listRecordsInput) (*recordsOutput, error) {
		if err := requireCollection(in.Collection); err != nil {
			return nil, err
		}
		filters, err := parseFilters(in.Filter)
		if err != nil {
			return nil, err
		}
		records, lerr := r.ListRecords(ctx, in.Collection, filters)
		if lerr != nil {
			return nil, handleError(lerr)
		}
		out := &recordsOutput{}
		out.Body.Records = records
		if out.Body.Records == nil {
			out.Body.Records = []json.RawMessage{}
		}
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-record",
		Method:        http.MethodPost,
		Path:          "/collections/{collection}",
		Summary:       "Create a record; the server assigns the id",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *createRecordInput) (*recordOutput, error) {
		if err := requireCollection(in.Collection); err != nil {
			return nil, err
		}
		actorID := ""
		if p, ok := principalFromContext(ctx); ok {
			actorID = p.ActorID
		}
		stored, err := r.InsertRecord(ctx, in.Collection, in.RawBody, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &recordOutput{}
		out.Body.Record = stored
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-record",
		Method:      http.MethodPatch,
		Path:        "/collections/{collection}/{id}",
		Summary:     "Merge a partial into a record",
	}, func(ctx context.Context, in *updateRecordInput) (*recordOutput, error) {
		if err := requireCollection(in.Collection); err != nil {
			return nil, err
		}
		stored, err := r.UpdateRecord(ctx, in.Collection, in.ID, in.RawBody)
		if err != nil {
			return nil, handleError(err)
		}
		out := &recordOutput{}
		out.Body.Record = stored
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-record",
		Method:        http.MethodDelete,
		Path:          "/collections/{collection}/{id}",
		Summary:       "Delete a record",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, in *deleteRecordInput) (*struct{}, error) {
		if err := requireCollection(in.Collection); err != nil {
			return nil, err
		}
		if err := r.DeleteRecord(ctx, in.Collection, in.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

type changesInput struct {
	Table string `query:"table" required:"true"`
	After int64  `query:"after"`
	Limit int    `query:"limit"`
}

type changesOutput struct {
	Body struct {
		Changes []repo.Change `json:"changes"`
	}
}

func registerChanges(api huma.API, r repo.Repo) {
	huma.Register(api, huma.Operation{
		OperationID: "list-changes",
		Method:      http.MethodGet,
		Path:        "/changes",
		Summary:     "Change feed entries after a cursor",
	}, func(ctx context.Context, in *changesInput) (*changesOutput, error) {
		if err := requireCollection(in.Table); err != nil {
			return nil, err
		}
		changes, err := r.ChangesAfter(ctx, in.Table, in.After, in.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		out := &changesOutput{}
		out.Body.Changes = changes
		if out.Body.Changes == nil {
			out.Body.Changes = []repo.Change{}
		}
		return out, nil
	})
}

type mintTokenInput struct {
	Body struct {
		ActorID   string `json:"actor_id" minLength:"1"`
		ActorName string `json:"actor_name,omitempty"`
	}
}

type mintTokenOutput struct {
	Body struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at" format:"date-time"`
	}
}

func registerDevAuth(api huma.API, cfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "mint-token",
		Method:      http.MethodPost,
		Path:        "/auth/token",
		Summary:     "Mint a development bearer token",
	}, func(ctx context.Context, in *mintTokenInput) (*mintTokenOutput, error) {
		token, expires, err := mintToken(cfg.JWTSecret, in.Body.ActorID, in.Body.ActorName, cfg.tokenTTL(), time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		out := &mintTokenOutput{}
		out.Body.Token = token
		out.Body.ExpiresAt = expires.UTC().Format(time.RFC3339)
		return out, nil
	})
}

func parseFilters(pairs []string) (map[string]string, huma.StatusError) {
	if len(pairs) == 0 {
		return nil, nil
	}
	filters := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, ":")
		if !ok || field == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "filter must be field:value, got "+pair, nil)
		}
		filters[field] = value
	}
	return filters, nil
}
