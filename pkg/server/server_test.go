package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"hivemind-hq/scribe/pkg/approvals"
	"hivemind-hq/scribe/pkg/capability"
	"hivemind-hq/scribe/pkg/config"
	"hivemind-hq/scribe/pkg/routing"
	"hivemind-hq/scribe/pkg/sharing/store"
	"hivemind-hq/scribe/pkg/spaces"
	"hivemind-hq/scribe/pkg/spaces/catalog"
	"hivemind-hq/scribe/pkg/telemetry/logging"
	"hivemind-hq/scribe/pkg/telemetry/metrics"
)

// stubClassifier returns a fixed judgment.
type stubClassifier struct {
	judgment capability.Judgment
}

func (c *stubClassifier) Evaluate(ctx context.Context, req capability.Request) (capability.Judgment, error) {
	return c.judgment, nil
}

type testAPI struct {
	srv        *httptest.Server
	classifier *stubClassifier
}

func newTestAPI(t *testing.T, collector *metrics.Collector) *testAPI {
	t.Helper()

	logger, err := logging.New(logging.Config{Level: "error", Format: "text"})
	if err != nil {
		t.Fatal(err)
	}

	registryOpts := spaces.RegistryOptions{Logger: logger.Slog()}
	if collector != nil {
		registryOpts.Observer = collector
	}
	registry := spaces.NewRegistry(registryOpts)
	memStore := store.NewMemoryStore()
	t.Cleanup(func() { memStore.Close() })

	classifier := &stubClassifier{judgment: capability.Judgment{
		Relevant:        true,
		Reason:          "matched inclusion criteria",
		ProposedContent: "a filtered rendering",
		Topics:          []string{"emotional_state"},
		Confidence:      0.9,
		Sensitivity:     0.2,
	}}

	var observer routing.Observer
	if collector != nil {
		observer = collector
	}
	engine, err := routing.NewEngine(routing.EngineParams{
		Registry:   registry,
		Store:      memStore,
		Classifier: classifier,
		Observer:   observer,
		Logger:     logger.Slog(),
	})
	if err != nil {
		t.Fatal(err)
	}

	queue := approvals.NewQueue(memStore, registry, logger.Slog())
	if collector != nil {
		queue.SetObserver(collector)
	}

	s, err := New(Params{
		Config:   config.ServerConfig{ListenAddress: ":0"},
		Registry: registry,
		Engine:   engine,
		Queue:    queue,
		Catalog:  catalog.New(logger.Slog()),
		Store:    memStore,
		Logger:   logger,
		Metrics:  collector,
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, classifier: classifier}
}

// call issues a request and decodes the envelope's data into out (if non-nil).
func (a *testAPI) call(t *testing.T, method, path string, body any, wantStatus int, out any) {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req, err := http.NewRequest(method, a.srv.URL+path, reqBody)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("%s %s: decoding envelope: %v", method, path, err)
	}

	if resp.StatusCode != wantStatus {
		msg := ""
		if envelope.Error != nil {
			msg = envelope.Error.Message
		}
		t.Fatalf("%s %s: status = %d, want %d (%s)", method, path, resp.StatusCode, wantStatus, msg)
	}
	if out != nil && envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			t.Fatalf("%s %s: decoding data: %v", method, path, err)
		}
	}
}

// errorCode fetches the error code for a request expected to fail.
func (a *testAPI) errorCode(t *testing.T, method, path string, body any, wantStatus int) string {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, a.srv.URL+path, reqBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Success bool `json:"success"`
		Error   *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: status = %d, want %d", method, path, resp.StatusCode, wantStatus)
	}
	if envelope.Success {
		t.Fatalf("%s %s: success = true on error response", method, path)
	}
	if envelope.Error == nil {
		t.Fatalf("%s %s: missing error body", method, path)
	}
	return envelope.Error.Code
}

func (a *testAPI) createUser(t *testing.T, name string) spaces.User {
	t.Helper()
	var user spaces.User
	a.call(t, http.MethodPost, "/v1/users",
		map[string]string{"display_name": name}, http.StatusCreated, &user)
	return user
}

func permissiveServerPolicy() spaces.Policy {
	return spaces.Policy{
		InclusionCriteria:    []string{"emotional_state"},
		Attribution:          spaces.AttributionFull,
		AutoApproveThreshold: 0.5,
	}
}

func (a *testAPI) createSpace(t *testing.T, creatorID string, policy spaces.Policy) spaces.Space {
	t.Helper()
	var space spaces.Space
	a.call(t, http.MethodPost, "/v1/spaces", map[string]any{
		"creator_id": creatorID,
		"name":       "test space",
		"space_type": "group",
		"policy":     policy,
	}, http.StatusCreated, &space)
	return space
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)

	var data map[string]string
	api.call(t, http.MethodGet, "/healthz", nil, http.StatusOK, &data)
	if data["status"] != "ok" {
		t.Errorf("status = %q", data["status"])
	}
}

func TestRequestIDEchoed(t *testing.T) {
	api := newTestAPI(t, nil)

	req, _ := http.NewRequest(http.MethodGet, api.srv.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "req-test-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "req-test-123" {
		t.Errorf("request id = %q, want echo", got)
	}

	// Without a client id one is minted.
	resp2, err := http.Get(api.srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.Header.Get("X-Request-ID") == "" {
		t.Error("no request id minted")
	}
}

func TestSharingFlowEndToEnd(t *testing.T) {
	api := newTestAPI(t, nil)

	author := api.createUser(t, "Author")
	reader := api.createUser(t, "Reader")
	space := api.createSpace(t, author.ID, permissiveServerPolicy())

	// Reader joins with the invite code.
	var joined spaces.Space
	api.call(t, http.MethodPost, "/v1/spaces/"+space.ID+"/join", map[string]string{
		"user_id":     reader.ID,
		"invite_code": space.InviteCode,
	}, http.StatusOK, &joined)
	if len(joined.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(joined.Members))
	}

	// Author routes a turn; the stub classifier auto-approves.
	var routed struct {
		Results []map[string]any `json:"results"`
	}
	api.call(t, http.MethodPost, "/v1/turns/route", map[string]any{
		"user_id": author.ID,
		"turn":    map[string]any{"user_message": "feeling good about the week"},
	}, http.StatusOK, &routed)
	if len(routed.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(routed.Results))
	}
	if action := routed.Results[0]["action"]; action != "shared" {
		t.Fatalf("action = %v, want shared", action)
	}

	// Both members can read the document; the content is the filtered
	// rendering, never the raw turn.
	var docs struct {
		Documents []map[string]any `json:"documents"`
		Count     int              `json:"count"`
	}
	api.call(t, http.MethodGet,
		fmt.Sprintf("/v1/spaces/%s/documents?user_id=%s", space.ID, reader.ID),
		nil, http.StatusOK, &docs)
	if docs.Count != 1 {
		t.Fatalf("documents = %d, want 1", docs.Count)
	}
	if content := docs.Documents[0]["content"]; content != "a filtered rendering" {
		t.Errorf("content = %v", content)
	}

	// The author's spaces listing includes the space.
	var spacesList struct {
		Count int `json:"count"`
	}
	api.call(t, http.MethodGet, "/v1/users/"+author.ID+"/spaces", nil, http.StatusOK, &spacesList)
	if spacesList.Count != 1 {
		t.Errorf("spaces = %d, want 1", spacesList.Count)
	}
}

func TestApprovalFlowEndToEnd(t *testing.T) {
	api := newTestAPI(t, nil)

	author := api.createUser(t, "Author")
	policy := permissiveServerPolicy()
	policy.MandatoryApprovalCeiling = 0.5
	space := api.createSpace(t, author.ID, policy)

	api.classifier.judgment.Sensitivity = 0.8

	var routed struct {
		Results []map[string]any `json:"results"`
	}
	api.call(t, http.MethodPost, "/v1/turns/route", map[string]any{
		"user_id": author.ID,
		"turn":    map[string]any{"user_message": "something sensitive happened"},
	}, http.StatusOK, &routed)
	if action := routed.Results[0]["action"]; action != "approval_needed" {
		t.Fatalf("action = %v, want approval_needed", action)
	}

	var pending struct {
		Approvals []map[string]any `json:"approvals"`
		Count     int              `json:"count"`
	}
	api.call(t, http.MethodGet, "/v1/users/"+author.ID+"/approvals", nil, http.StatusOK, &pending)
	if pending.Count != 1 {
		t.Fatalf("pending = %d, want 1", pending.Count)
	}
	approvalID := pending.Approvals[0]["approval_id"].(string)

	// Approve with an edit.
	var resolved struct {
		Resolved bool           `json:"resolved"`
		Approved bool           `json:"approved"`
		Document map[string]any `json:"document"`
	}
	api.call(t, http.MethodPost, "/v1/approvals/"+approvalID+"/resolve", map[string]any{
		"user_id":        author.ID,
		"approve":        true,
		"edited_content": "a softer rendering",
	}, http.StatusOK, &resolved)
	if !resolved.Resolved || !resolved.Approved {
		t.Fatalf("resolved = %+v", resolved)
	}
	if resolved.Document["content"] != "a softer rendering" {
		t.Errorf("document content = %v", resolved.Document["content"])
	}

	// The document is now visible in the space.
	var docs struct {
		Count int `json:"count"`
	}
	api.call(t, http.MethodGet,
		fmt.Sprintf("/v1/spaces/%s/documents?user_id=%s", space.ID, author.ID),
		nil, http.StatusOK, &docs)
	if docs.Count != 1 {
		t.Errorf("documents = %d, want 1", docs.Count)
	}

	// A conflicting second decision is a conflict.
	code := api.errorCode(t, http.MethodPost, "/v1/approvals/"+approvalID+"/resolve", map[string]any{
		"user_id": author.ID,
		"approve": false,
	}, http.StatusConflict)
	if code != "already_resolved" {
		t.Errorf("code = %q", code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	api := newTestAPI(t, nil)

	author := api.createUser(t, "Author")
	outsider := api.createUser(t, "Outsider")
	space := api.createSpace(t, author.ID, permissiveServerPolicy())

	if code := api.errorCode(t, http.MethodGet, "/v1/users/usr_missing", nil, http.StatusNotFound); code != "not_found" {
		t.Errorf("unknown user code = %q", code)
	}
	if code := api.errorCode(t, http.MethodGet, "/v1/spaces/spc_missing", nil, http.StatusNotFound); code != "not_found" {
		t.Errorf("unknown space code = %q", code)
	}

	// Wrong invite code.
	code := api.errorCode(t, http.MethodPost, "/v1/spaces/"+space.ID+"/join", map[string]string{
		"user_id":     outsider.ID,
		"invite_code": "WRONG-00",
	}, http.StatusForbidden)
	if code != "invalid_invite_code" {
		t.Errorf("bad code = %q", code)
	}

	// Repeat join by the creator.
	code = api.errorCode(t, http.MethodPost, "/v1/spaces/"+space.ID+"/join", map[string]string{
		"user_id":     author.ID,
		"invite_code": space.InviteCode,
	}, http.StatusConflict)
	if code != "already_member" {
		t.Errorf("repeat join code = %q", code)
	}

	// Non-members cannot read documents.
	code = api.errorCode(t, http.MethodGet,
		fmt.Sprintf("/v1/spaces/%s/documents?user_id=%s", space.ID, outsider.ID),
		nil, http.StatusForbidden)
	if code != "not_authorized" {
		t.Errorf("non-member code = %q", code)
	}

	// Only the creator edits policy.
	api.call(t, http.MethodPost, "/v1/spaces/"+space.ID+"/join", map[string]string{
		"user_id":     outsider.ID,
		"invite_code": space.InviteCode,
	}, http.StatusOK, nil)
	code = api.errorCode(t, http.MethodPut, "/v1/spaces/"+space.ID+"/policy", map[string]any{
		"requester_id": outsider.ID,
		"policy":       permissiveServerPolicy(),
	}, http.StatusForbidden)
	if code != "not_authorized" {
		t.Errorf("policy edit code = %q", code)
	}

	// Malformed body.
	resp, err := http.Post(api.srv.URL+"/v1/users", "application/json", strings.NewReader("{nope"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", resp.StatusCode)
	}

	// Pairwise capacity is a validation failure.
	code = api.errorCode(t, http.MethodPost, "/v1/spaces", map[string]any{
		"creator_id": author.ID,
		"name":       "too many seats",
		"space_type": "pairwise",
		"seats":      5,
		"policy":     permissiveServerPolicy(),
	}, http.StatusBadRequest)
	if code != "invalid_request" {
		t.Errorf("capacity code = %q", code)
	}
}

func TestLookupSpaceByInviteCode(t *testing.T) {
	api := newTestAPI(t, nil)

	author := api.createUser(t, "Author")
	space := api.createSpace(t, author.ID, permissiveServerPolicy())

	var found spaces.Space
	api.call(t, http.MethodGet, "/v1/spaces/lookup?invite_code="+space.InviteCode,
		nil, http.StatusOK, &found)
	if found.ID != space.ID {
		t.Errorf("lookup returned %q, want %q", found.ID, space.ID)
	}

	if code := api.errorCode(t, http.MethodGet, "/v1/spaces/lookup?invite_code=NOPE0000",
		nil, http.StatusNotFound); code != "not_found" {
		t.Errorf("unknown code lookup = %q", code)
	}
}

func TestUpdatePolicyBumpsVersion(t *testing.T) {
	api := newTestAPI(t, nil)

	author := api.createUser(t, "Author")
	space := api.createSpace(t, author.ID, permissiveServerPolicy())

	next := permissiveServerPolicy()
	next.AutoApproveThreshold = 0.95

	var policy spaces.Policy
	api.call(t, http.MethodPut, "/v1/spaces/"+space.ID+"/policy", map[string]any{
		"requester_id": author.ID,
		"policy":       next,
	}, http.StatusOK, &policy)

	if policy.Version != space.Policy.Version+1 {
		t.Errorf("version = %d, want %d", policy.Version, space.Policy.Version+1)
	}
	if policy.AutoApproveThreshold != 0.95 {
		t.Errorf("threshold = %v", policy.AutoApproveThreshold)
	}
}

func TestListTemplates(t *testing.T) {
	api := newTestAPI(t, nil)

	var data struct {
		Templates []catalog.Template `json:"templates"`
		Count     int                `json:"count"`
	}
	api.call(t, http.MethodGet, "/v1/templates", nil, http.StatusOK, &data)
	if data.Count == 0 {
		t.Fatal("no templates")
	}

	found := false
	for _, tpl := range data.Templates {
		if tpl.ID == catalog.CustomTemplateID {
			found = true
		}
	}
	if !found {
		t.Error("custom template missing from listing")
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	api := newTestAPI(t, collector)

	author := api.createUser(t, "Author")
	api.createSpace(t, author.ID, permissiveServerPolicy())
	api.call(t, http.MethodPost, "/v1/turns/route", map[string]any{
		"user_id": author.ID,
		"turn":    map[string]any{"user_message": "hello"},
	}, http.StatusOK, nil)

	resp, err := http.Get(api.srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `scribe_router_route_decisions_total{action="shared"}`) {
		t.Error("route decision counter missing from exposition")
	}
	if !strings.Contains(buf.String(), `scribe_router_registry_operations_total{operation="create_user",outcome="ok"}`) {
		t.Error("registry operation counter missing from exposition")
	}
}
