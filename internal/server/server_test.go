package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"wmsforge/internal/app"
	"wmsforge/internal/domain"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	ac, err := app.Resolve(workspace, "tester")
	if err != nil {
		t.Fatalf("resolve workspace: %v", err)
	}
	ac.Suggester.Delay = 0
	handler, err := New(Config{
		Store:     ac.Store,
		Suggester: ac.Suggester,
		Events:    ac.Events,
		BasePath:  "/v0",
		Auth:      auth,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			ac.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestAuthoringFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"name":     "Solar Farm Installation",
		"location": "Houston",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/wms", map[string]any{
		"title": "Panel Array Lift",
		"scope": "Install panel arrays",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create wms: %d %s", res.StatusCode, string(data))
	}
	var w domain.WMS
	_ = json.Unmarshal(data, &w)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/wms/"+w.ID+"/steps", map[string]any{
		"title": "Crane lift over array",
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add step: %d %s", res.StatusCode, string(data))
	}
	var st domain.WorkStep
	_ = json.Unmarshal(data, &st)
	if st.Order != 1 {
		t.Fatalf("step order = %d", st.Order)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/wms/"+w.ID+"/risks", map[string]any{
		"type":              "Lifting",
		"description":       "Crane tipping due to soft ground",
		"severity":          5,
		"likelihood":        3,
		"mitigation":        "Conduct soil bearing analysis",
		"associatedStepIds": []string{st.ID},
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add risk: %d %s", res.StatusCode, string(data))
	}
	var r RiskResponse
	_ = json.Unmarshal(data, &r)
	if r.Level != "High" {
		t.Fatalf("risk level = %s, want High", r.Level)
	}
	if r.Source != domain.SourceManual {
		t.Fatalf("risk source = %s", r.Source)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/templates", map[string]any{
		"projectId": p.ID,
		"wmsId":     w.ID,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("save template: %d %s", res.StatusCode, string(data))
	}
	var tmpl domain.Template
	_ = json.Unmarshal(data, &tmpl)
	if tmpl.Title != "Panel Array Lift Template" {
		t.Fatalf("template title = %s", tmpl.Title)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/templates/"+tmpl.ID+"/apply", nil, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("apply template: %d %s", res.StatusCode, string(data))
	}
	var inst domain.WMS
	_ = json.Unmarshal(data, &inst)
	if inst.ID == w.ID || inst.TemplateID != tmpl.ID {
		t.Fatalf("instance id %s template %s", inst.ID, inst.TemplateID)
	}
	if len(inst.Risks) != 1 || len(inst.Risks[0].AssociatedStepIDs) != 1 || inst.Risks[0].AssociatedStepIDs[0] != inst.Steps[0].ID {
		t.Fatalf("instance associations not remapped: %+v", inst.Risks)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?limit=50", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list events: %d %s", res.StatusCode, string(data))
	}
	var evts []map[string]any
	_ = json.Unmarshal(data, &evts)
	if len(evts) == 0 {
		t.Fatalf("expected audit events")
	}
}

func TestErrorEnvelope(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/projects/ghost", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d: %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("code = %s", envelope.Error.Code)
	}
}

func TestRiskValidationOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{"name": "P", "location": "L"}, nil)
	var p domain.Project
	_ = json.Unmarshal(data, &p)
	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/wms", map[string]any{"title": "W"}, nil)
	var w domain.WMS
	_ = json.Unmarshal(data, &w)

	// Dangling association violates a domain rule.
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/wms/"+w.ID+"/risks", map[string]any{
		"type":              "General",
		"description":       "d",
		"severity":          3,
		"likelihood":        3,
		"mitigation":        "m",
		"associatedStepIds": []string{"ghost"},
	}, nil)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %s", res.StatusCode, string(data))
	}

	// Out-of-range rating is rejected by request schema validation.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/wms/"+w.ID+"/risks", map[string]any{
		"type":        "General",
		"description": "d",
		"severity":    9,
		"likelihood":  3,
		"mitigation":  "m",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}
}

func TestEquipmentSummaryOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{"name": "P", "location": "L"}, nil)
	var p domain.Project
	_ = json.Unmarshal(data, &p)
	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/wms", map[string]any{"title": "W"}, nil)
	var w domain.WMS
	_ = json.Unmarshal(data, &w)

	for _, title := range []string{"rig", "lift"} {
		_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/wms/"+w.ID+"/steps", map[string]any{"title": title}, nil)
		var st domain.WorkStep
		_ = json.Unmarshal(data, &st)
		res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/wms/"+w.ID+"/steps/"+st.ID+"/equipment", map[string]any{
			"name": "Hard Hat", "category": "ppe", "quantity": 2,
		}, nil)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("add equipment: %d %s", res.StatusCode, string(body))
		}
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects/"+p.ID+"/wms/"+w.ID+"/equipment", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("summary: %d %s", res.StatusCode, string(data))
	}
	var agg map[string][]domain.Equipment
	if err := json.Unmarshal(data, &agg); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if len(agg["ppe"]) != 1 || agg["ppe"][0].Quantity != 4 {
		t.Fatalf("ppe aggregate = %+v", agg["ppe"])
	}
}

func TestSuggestionsOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	_, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{"name": "P", "location": "L"}, nil)
	var p domain.Project
	_ = json.Unmarshal(data, &p)
	_, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/wms", map[string]any{"title": "W"}, nil)
	var w domain.WMS
	_ = json.Unmarshal(data, &w)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects/"+p.ID+"/wms/"+w.ID+"/suggestions", map[string]any{
		"analysis": "lifting",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("suggest: %d %s", res.StatusCode, string(data))
	}
	var candidates []RiskResponse
	if err := json.Unmarshal(data, &candidates); err != nil {
		t.Fatalf("unmarshal candidates: %v", err)
	}
	if len(candidates) != 3 {
		t.Fatalf("expected 3 canned lifting candidates, got %d", len(candidates))
	}
	for _, c := range candidates {
		if c.Source != domain.SourceAI {
			t.Fatalf("candidate source = %s", c.Source)
		}
	}
}

func TestJWTAuth(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: "test-secret"})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email": "sam@example.com", "password": "",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("empty password should be rejected, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/login", map[string]any{
		"email": "sam@example.com", "password": "anything",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", res.StatusCode, string(data))
	}
	var login LoginResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}
	if login.Token == "" || login.ActorID != "sam@example.com" {
		t.Fatalf("login response = %+v", login)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{
		"Authorization": "Bearer " + login.Token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("authed list: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/projects", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d %s", res.StatusCode, string(data))
	}
}
