// Package server exposes the workspace store over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"wmsforge/internal/domain"
	"wmsforge/internal/events"
	"wmsforge/internal/store"
	"wmsforge/internal/suggest"
)

// Config for the HTTP API handler.
type Config struct {
	Store     *store.Store
	Suggester suggest.Suggester
	Events    *events.Writer
	BasePath  string
	Auth      AuthConfig
	Now       func() time.Time
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"project p-1: not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the WMS Forge API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
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
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("WMS Forge API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerLogin(group, cfg.Auth, cfg.Now)
	registerProjects(group, cfg.Store)
	registerWMS(group, cfg.Store)
	registerSteps(group, cfg.Store)
	registerRisks(group, cfg.Store)
	registerEquipment(group, cfg.Store)
	registerTemplates(group, cfg.Store)
	registerSuggestions(group, cfg.Store, cfg.Suggester)
	registerEvents(group, cfg.Events)
	registerOpenAPI(router, api, basePath)

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

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, store.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	if errors.Is(err, store.ErrInvalid) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "unknown") || strings.Contains(lowered, "required") || strings.Contains(lowered, "missing") {
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func bodyBytes(ctx context.Context) []byte {
	b, _ := ctx.Value(bodyBytesKey{}).([]byte)
	return b
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			spec, _ = json.Marshal(api.OpenAPI())
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>WMS Forge API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if strings.TrimSpace(input.Body.Name) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "name is required", nil)
		}
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := s.CreateProject(ctx, input.Body.Name, input.Body.Location, input.Body.Description)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		items := s.Projects()
		if items == nil {
			items = []domain.Project{}
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, err := s.GetProject(input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		p, err := s.GetProject(input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		if input.Body.Name != nil {
			p.Name = *input.Body.Name
		}
		if input.Body.Location != nil {
			p.Location = *input.Body.Location
		}
		if input.Body.Description != nil {
			p.Description = *input.Body.Description
		}
		if input.Body.StartDate != nil {
			p.StartDate = *input.Body.StartDate
		}
		if input.Body.EndDate != nil {
			p.EndDate = *input.Body.EndDate
		}
		updated, err := s.UpdateProject(ctx, p)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: updated}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-project",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}",
		Summary:     "Delete project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		if err := s.DeleteProject(ctx, input.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-current-project",
		Method:      http.MethodGet,
		Path:        "/current-project",
		Summary:     "Get current project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		p, ok := s.CurrentProject()
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "no project selected", nil)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "select-project",
		Method:      http.MethodPut,
		Path:        "/current-project",
		Summary:     "Select current project",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body SelectProjectRequest `json:"body"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		if input.Body.ProjectID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "projectId is required", nil)
		}
		if err := s.SetCurrentProject(ctx, input.Body.ProjectID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"currentProjectId": input.Body.ProjectID}}, nil
	})
}

func registerWMS(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-wms",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/wms",
		Summary:       "Create work method statement",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      CreateWMSRequest `json:"body"`
	}) (*struct {
		Body domain.WMS `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		w, err := s.CreateWMS(ctx, input.ProjectID, input.Body.Title, input.Body.Scope)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WMS `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-wms",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/wms",
		Summary:     "List work method statements",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.WMS `json:"body"`
	}, error) {
		p, err := s.GetProject(input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		items := p.WMSList
		if items == nil {
			items = []domain.WMS{}
		}
		return &struct {
			Body []domain.WMS `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-wms",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/wms/{wms_id}",
		Summary:     "Get work method statement",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		WMSID     string `path:"wms_id"`
	}) (*struct {
		Body domain.WMS `json:"body"`
	}, error) {
		w, err := s.GetWMS(input.ProjectID, input.WMSID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WMS `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-wms",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/wms/{wms_id}",
		Summary:     "Replace work method statement",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string     `path:"project_id"`
		WMSID     string     `path:"wms_id"`
		Body      domain.WMS `json:"body"`
	}) (*struct {
		Body domain.WMS `json:"body"`
	}, error) {
		w := input.Body
		w.ID = input.WMSID
		w.ProjectID = input.ProjectID
		updated, err := s.UpdateWMS(ctx, w)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WMS `json:"body"`
		}{Body: updated}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-wms",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/wms/{wms_id}",
		Summary:     "Delete work method statement",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		WMSID     string `path:"wms_id"`
	}) (*struct{}, error) {
		if err := s.DeleteWMS(ctx, input.ProjectID, input.WMSID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSteps(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-step",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/wms/{wms_id}/steps",
		Summary:       "Add work step",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		WMSID     string            `path:"wms_id"`
		Body      CreateStepRequest `json:"body"`
	}) (*struct {
		Body domain.WorkStep `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Body.Title) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "title is required", nil)
		}
		st, err := s.AddStep(ctx, input.ProjectID, input.WMSID, input.Body.Title, input.Body.Description, input.Body.Notes)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkStep `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-step",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/wms/{wms_id}/steps/{step_id}",
		Summary:     "Update work step",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		WMSID     string          `path:"wms_id"`
		StepID    string          `path:"step_id"`
		Body      domain.WorkStep `json:"body"`
	}) (*struct {
		Body domain.WorkStep `json:"body"`
	}, error) {
		st := input.Body
		st.ID = input.StepID
		updated, err := s.UpdateStep(ctx, input.ProjectID, input.WMSID, st)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WorkStep `json:"body"`
		}{Body: updated}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-step",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/wms/{wms_id}/steps/{step_id}/move",
		Summary:     "Move work step",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string          `path:"project_id"`
		WMSID     string          `path:"wms_id"`
		StepID    string          `path:"step_id"`
		Body      MoveStepRequest `json:"body"`
	}) (*struct {
		Body domain.WMS `json:"body"`
	}, error) {
		if err := s.MoveStep(ctx, input.ProjectID, input.WMSID, input.StepID, input.Body.Position); err != nil {
			return nil, handleError(err)
		}
		w, err := s.GetWMS(input.ProjectID, input.WMSID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WMS `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-step",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/wms/{wms_id}/steps/{step_id}",
		Summary:     "Delete work step",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		WMSID     string `path:"wms_id"`
		StepID    string `path:"step_id"`
	}) (*struct{}, error) {
		if err := s.DeleteStep(ctx, input.ProjectID, input.WMSID, input.StepID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerRisks(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-risk",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/wms/{wms_id}/risks",
		Summary:       "Add risk",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		WMSID     string            `path:"wms_id"`
		Body      CreateRiskRequest `json:"body"`
	}) (*struct {
		Body RiskResponse `json:"body"`
	}, error) {
		r, err := s.AddRisk(ctx, input.ProjectID, input.WMSID, input.Body.toDomain())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RiskResponse `json:"body"`
		}{Body: riskResponse(r)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-risk",
		Method:      http.MethodPut,
		Path:        "/projects/{project_id}/wms/{wms_id}/risks/{risk_id}",
		Summary:     "Update risk",
		Errors:      []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string      `path:"project_id"`
		WMSID     string      `path:"wms_id"`
		RiskID    string      `path:"risk_id"`
		Body      domain.Risk `json:"body"`
	}) (*struct {
		Body RiskResponse `json:"body"`
	}, error) {
		r := input.Body
		r.ID = input.RiskID
		updated, err := s.UpdateRisk(ctx, input.ProjectID, input.WMSID, r)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RiskResponse `json:"body"`
		}{Body: riskResponse(updated)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-risk",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/wms/{wms_id}/risks/{risk_id}",
		Summary:     "Delete risk",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		WMSID     string `path:"wms_id"`
		RiskID    string `path:"risk_id"`
	}) (*struct{}, error) {
		if err := s.DeleteRisk(ctx, input.ProjectID, input.WMSID, input.RiskID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEquipment(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-equipment",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/wms/{wms_id}/steps/{step_id}/equipment",
		Summary:       "Attach equipment to a step",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		WMSID     string              `path:"wms_id"`
		StepID    string              `path:"step_id"`
		Body      AddEquipmentRequest `json:"body"`
	}) (*struct {
		Body domain.Equipment `json:"body"`
	}, error) {
		eq, err := s.AddEquipment(ctx, input.ProjectID, input.WMSID, input.StepID, domain.Equipment{
			Name:     input.Body.Name,
			Category: input.Body.Category,
			Quantity: input.Body.Quantity,
			Icon:     input.Body.Icon,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Equipment `json:"body"`
		}{Body: eq}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-equipment",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/wms/{wms_id}/steps/{step_id}/equipment/{equipment_id}",
		Summary:     "Detach equipment from a step",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID   string `path:"project_id"`
		WMSID       string `path:"wms_id"`
		StepID      string `path:"step_id"`
		EquipmentID string `path:"equipment_id"`
	}) (*struct{}, error) {
		if err := s.RemoveEquipment(ctx, input.ProjectID, input.WMSID, input.StepID, input.EquipmentID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "equipment-summary",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/wms/{wms_id}/equipment",
		Summary:     "Aggregate equipment across steps",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		WMSID     string `path:"wms_id"`
	}) (*struct {
		Body map[domain.EquipmentCategory][]domain.Equipment `json:"body"`
	}, error) {
		w, err := s.GetWMS(input.ProjectID, input.WMSID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[domain.EquipmentCategory][]domain.Equipment `json:"body"`
		}{Body: domain.AggregateEquipment(w)}, nil
	})
}

func registerTemplates(api huma.API, s *store.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "list-templates",
		Method:      http.MethodGet,
		Path:        "/templates",
		Summary:     "List templates",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Template `json:"body"`
	}, error) {
		items := s.Templates()
		if items == nil {
			items = []domain.Template{}
		}
		return &struct {
			Body []domain.Template `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-template",
		Method:      http.MethodGet,
		Path:        "/templates/{template_id}",
		Summary:     "Get template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TemplateID string `path:"template_id"`
	}) (*struct {
		Body domain.Template `json:"body"`
	}, error) {
		t, err := s.GetTemplate(input.TemplateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Template `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "save-template",
		Method:        http.MethodPost,
		Path:          "/templates",
		Summary:       "Save a work method statement as a template",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body SaveTemplateRequest `json:"body"`
	}) (*struct {
		Body domain.Template `json:"body"`
	}, error) {
		if input.Body.ProjectID == "" || input.Body.WMSID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "projectId and wmsId are required", nil)
		}
		w, err := s.GetWMS(input.Body.ProjectID, input.Body.WMSID)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := s.SaveAsTemplate(ctx, w, input.Body.Title)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Template `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "apply-template",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/templates/{template_id}/apply",
		Summary:       "Instantiate a template into a project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		TemplateID string `path:"template_id"`
	}) (*struct {
		Body domain.WMS `json:"body"`
	}, error) {
		w, err := s.ApplyTemplate(ctx, input.ProjectID, input.TemplateID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.WMS `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-template",
		Method:      http.MethodDelete,
		Path:        "/templates/{template_id}",
		Summary:     "Delete template",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		TemplateID string `path:"template_id"`
	}) (*struct{}, error) {
		if err := s.DeleteTemplate(ctx, input.TemplateID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSuggestions(api huma.API, s *store.Store, sg suggest.Suggester) {
	huma.Register(api, huma.Operation{
		OperationID: "suggest-risks",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/wms/{wms_id}/suggestions",
		Summary:     "Suggest risks for a work method statement",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string         `path:"project_id"`
		WMSID     string         `path:"wms_id"`
		Body      SuggestRequest `json:"body"`
	}) (*struct {
		Body []RiskResponse `json:"body"`
	}, error) {
		if sg == nil {
			return nil, newAPIError(http.StatusServiceUnavailable, "suggestions_disabled", "no suggester configured", nil)
		}
		w, err := s.GetWMS(input.ProjectID, input.WMSID)
		if err != nil {
			return nil, handleError(err)
		}
		candidates, err := sg.SuggestRisks(ctx, w, input.Body.Analysis)
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]RiskResponse, 0, len(candidates))
		for _, r := range candidates {
			out = append(out, riskResponse(r))
		}
		return &struct {
			Body []RiskResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, w *events.Writer) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent audit events",
	}, func(ctx context.Context, input *struct {
		Limit      int    `query:"limit" minimum:"0" maximum:"500"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
	}) (*struct {
		Body []events.Event `json:"body"`
	}, error) {
		items, err := w.Latest(ctx, input.Limit, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []events.Event{}
		}
		return &struct {
			Body []events.Event `json:"body"`
		}{Body: items}, nil
	})
}
