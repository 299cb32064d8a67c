package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispforge/sagaflow/pkg/channels/gochannel"
	"github.com/ispforge/sagaflow/pkg/eventbus"
	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence/file"
	"github.com/ispforge/sagaflow/pkg/provisioning"
	"github.com/ispforge/sagaflow/pkg/saga"
	"github.com/ispforge/sagaflow/pkg/services"
	"github.com/ispforge/sagaflow/pkg/web"
)

func setupTestApp(t *testing.T, bus eventbus.EventBus) *fiber.App {
	t.Helper()

	registry := saga.NewRegistry()
	for _, def := range provisioning.Definitions(provisioning.NewDevClients().Clients()) {
		require.NoError(t, registry.Register(def))
	}

	api := NewAPI(
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		file.NewPersistence(t.TempDir()),
		registry,
		bus,
		&saga.NoopLock{},
	)

	return api.App()
}

func closeBody(t *testing.T, resp *http.Response) {
	t.Helper()

	err := resp.Body.Close()
	if err != nil {
		t.Logf("Failed to close response body: %v", err)
	}
}

func TestAPI_RootEndpoint(t *testing.T) {
	app := setupTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Sagaflow API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	app := setupTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err = app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_TenantHeaderRequired(t *testing.T) {
	app := setupTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/workflows", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ProvisionSubscriber_Sync(t *testing.T) {
	app := setupTestApp(t, nil)

	payload := `{"subscriber_id":"sub-1","service_plan":"fiber-300","onu_serial":"HWTC12345678"}`

	req := httptest.NewRequest(http.MethodPost, "/workflows/provision", strings.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var provisioned services.ProvisionSubscriberResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&provisioned))
	assert.Equal(t, models.WorkflowStatusCompleted, provisioned.Status)
	assert.Equal(t, "sub-1", provisioned.SubscriberID)
	assert.NotEmpty(t, provisioned.IPv4Address)
	assert.NotEmpty(t, provisioned.WorkflowID)
}

func TestAPI_ProvisionSubscriber_MissingPlan(t *testing.T) {
	app := setupTestApp(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/workflows/provision", strings.NewReader(`{"subscriber_id":"sub-1"}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ProvisionSubscriber_Async(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	app := setupTestApp(t, bus)

	payload := `{"subscriber_id":"sub-1","service_plan":"fiber-300"}`

	req := httptest.NewRequest(http.MethodPost, "/workflows/provision?async=true", strings.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted services.SubmitResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&submitted))
	assert.Equal(t, models.WorkflowStatusPending, submitted.Status)
	assert.NotEmpty(t, submitted.WorkflowID)
}

func TestAPI_GetWorkflow(t *testing.T) {
	app := setupTestApp(t, nil)

	payload := `{"subscriber_id":"sub-1","service_plan":"fiber-300"}`

	req := httptest.NewRequest(http.MethodPost, "/workflows/provision", strings.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	var provisioned services.ProvisionSubscriberResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&provisioned))

	req = httptest.NewRequest(http.MethodGet, "/workflows/"+provisioned.WorkflowID, nil)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err = app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var workflow models.Workflow

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&workflow))
	assert.Equal(t, provisioned.WorkflowID, workflow.WorkflowID)
	assert.Len(t, workflow.Steps, 4)

	// Unknown id and foreign tenant both read as not found.
	req = httptest.NewRequest(http.MethodGet, "/workflows/wf-missing", nil)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err = app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/workflows/"+provisioned.WorkflowID, nil)
	req.Header.Set(web.TenantHeader, "tenant-b")

	resp, err = app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_RetryCompletedWorkflowConflicts(t *testing.T) {
	app := setupTestApp(t, nil)

	payload := `{"subscriber_id":"sub-1","service_plan":"fiber-300"}`

	req := httptest.NewRequest(http.MethodPost, "/workflows/provision", strings.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	var provisioned services.ProvisionSubscriberResponse

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&provisioned))

	req = httptest.NewRequest(http.MethodPost, "/workflows/"+provisioned.WorkflowID+"/retry", nil)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err = app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_ListAndStats(t *testing.T) {
	app := setupTestApp(t, nil)

	payload := `{"subscriber_id":"sub-1","service_plan":"fiber-300"}`

	req := httptest.NewRequest(http.MethodPost, "/workflows/provision", strings.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	req = httptest.NewRequest(http.MethodGet, "/workflows?status=completed", nil)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err = app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Workflows  []models.Workflow `json:"workflows"`
		TotalCount int64             `json:"total_count"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.EqualValues(t, 1, list.TotalCount)

	req = httptest.NewRequest(http.MethodGet, "/workflows/stats", nil)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err = app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats struct {
		TotalCount int64 `json:"total_count"`
	}

	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.EqualValues(t, 1, stats.TotalCount)
}

func TestAPI_ExportCSV(t *testing.T) {
	app := setupTestApp(t, nil)

	payload := `{"subscriber_id":"sub-1","service_plan":"fiber-300"}`

	req := httptest.NewRequest(http.MethodPost, "/workflows/provision", strings.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err := app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	req = httptest.NewRequest(http.MethodGet, "/workflows/export?format=csv", nil)
	req.Header.Set(web.TenantHeader, "tenant-a")

	resp, err = app.Test(req)
	require.NoError(t, err)

	defer closeBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get(fiber.HeaderContentType))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "workflow_id")
	assert.Contains(t, string(body), "allocate_ip")
}
