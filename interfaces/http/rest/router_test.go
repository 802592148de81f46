package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"rulechain-backend/application/services"
	"rulechain-backend/domain/core/valueobjects"
	"rulechain-backend/domain/events"
	"rulechain-backend/infrastructure/persistence/memory"
	"rulechain-backend/interfaces/http/rest"
	"rulechain-backend/pkg/observability"
)

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastLifecycle(context.Context, valueobjects.TenantID, valueobjects.ChainID, events.LifecycleEvent) error {
	return nil
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, events.ChainNotification) error { return nil }

type nopEdgeGateway struct{}

func (nopEdgeGateway) SendChainEvent(context.Context, valueobjects.TenantID, valueobjects.ChainID, events.EdgeSyncAction) error {
	return nil
}

func newTestServer(t *testing.T) http.Handler {
	t.Helper()

	store := memory.NewStore()
	metrics := observability.NewCollector("rulechain_test")
	logger := zap.NewNop()

	resolver := services.NewOutputLabelResolver(store.Metadata(), logger)
	usages := services.NewUsageIndex(store.Chains(), store.Metadata(), store.Relations(), metrics, logger)
	relabel := services.NewRelabelEngine(usages, store.Relations(), metrics, logger)
	service := services.NewLinkageService(
		store.Chains(),
		store.Metadata(),
		resolver,
		usages,
		relabel,
		nopBroadcaster{},
		nopNotifier{},
		nopEdgeGateway{},
		metrics,
		logger,
	)

	return rest.NewRouter(service, metrics, logger).Setup()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-http")

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func createChain(t *testing.T, handler http.Handler, name, kind string) map[string]interface{} {
	t.Helper()

	w := doJSON(t, handler, "POST", "/api/v1/chains", map[string]interface{}{
		"name": name,
		"kind": kind,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	handler := newTestServer(t)

	for _, path := range []string{"/health", "/ready"} {
		req := httptest.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestServer(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateChain(t *testing.T) {
	handler := newTestServer(t)

	resp := createChain(t, handler, "Telemetry", "CORE")

	assert.NotEmpty(t, resp["id"])
	assert.Equal(t, "Telemetry", resp["name"])
	assert.Equal(t, "CORE", resp["kind"])
	assert.Equal(t, false, resp["root"])
}

func TestCreateChain_RequiresTenantHeader(t *testing.T) {
	handler := newTestServer(t)

	body, _ := json.Marshal(map[string]string{"name": "Telemetry", "kind": "CORE"})
	req := httptest.NewRequest("POST", "/api/v1/chains", bytes.NewReader(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateChain_RejectsUnknownKind(t *testing.T) {
	handler := newTestServer(t)

	w := doJSON(t, handler, "POST", "/api/v1/chains", map[string]string{
		"name": "Telemetry",
		"kind": "SIDEWAYS",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetChain_NotFound(t *testing.T) {
	handler := newTestServer(t)

	w := doJSON(t, handler, "GET", "/api/v1/chains/7b9e7cfb-54f5-4ab1-8b33-a3b26e0d1b27", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetChain_InvalidID(t *testing.T) {
	handler := newTestServer(t)

	w := doJSON(t, handler, "GET", "/api/v1/chains/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateChain(t *testing.T) {
	handler := newTestServer(t)
	created := createChain(t, handler, "Telemetry", "CORE")

	w := doJSON(t, handler, "PUT", fmt.Sprintf("/api/v1/chains/%s", created["id"]), map[string]interface{}{
		"name":      "Telemetry v2",
		"debugMode": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Telemetry v2", resp["name"])
	assert.Equal(t, true, resp["debugMode"])
}

func TestDeleteChain(t *testing.T) {
	handler := newTestServer(t)
	created := createChain(t, handler, "Doomed", "CORE")

	w := doJSON(t, handler, "DELETE", fmt.Sprintf("/api/v1/chains/%s", created["id"]), nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, handler, "GET", fmt.Sprintf("/api/v1/chains/%s", created["id"]), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDefaultChain(t *testing.T) {
	handler := newTestServer(t)

	w := doJSON(t, handler, "POST", "/api/v1/chains/default", map[string]string{"name": "Root Chain"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "CORE", resp["kind"])

	// The default chain starts with loadable, empty metadata
	w = doJSON(t, handler, "GET", fmt.Sprintf("/api/v1/chains/%s/metadata", resp["id"]), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var metadata map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metadata))
	assert.Empty(t, metadata["nodes"])
}

func TestSetRootChain(t *testing.T) {
	handler := newTestServer(t)
	created := createChain(t, handler, "Entry", "CORE")

	w := doJSON(t, handler, "POST", fmt.Sprintf("/api/v1/chains/%s/root", created["id"]), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["root"])
}

func TestMetadataAndOutputLabels(t *testing.T) {
	handler := newTestServer(t)
	created := createChain(t, handler, "Processing", "CORE")

	w := doJSON(t, handler, "POST", fmt.Sprintf("/api/v1/chains/%s/metadata", created["id"]), map[string]interface{}{
		"nodes": []map[string]interface{}{
			{"type": "OUTPUT", "name": "Success"},
			{"type": "OUTPUT", "name": "Failure"},
			{"type": "OTHER", "name": "Transform"},
		},
		"relations": []map[string]interface{}{},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, handler, "GET", fmt.Sprintf("/api/v1/chains/%s/output-labels", created["id"]), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"Failure", "Success"}, resp["labels"])
}

func TestSaveMetadata_RejectsDuplicateNodeIDs(t *testing.T) {
	handler := newTestServer(t)
	created := createChain(t, handler, "Processing", "CORE")

	nodeID := "c3a8f2de-9f30-4f6b-8f69-0f5ed9b45f11"
	w := doJSON(t, handler, "POST", fmt.Sprintf("/api/v1/chains/%s/metadata", created["id"]), map[string]interface{}{
		"nodes": []map[string]interface{}{
			{"id": nodeID, "type": "OUTPUT", "name": "Success"},
			{"id": nodeID, "type": "OUTPUT", "name": "Failure"},
		},
	})

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUsagesEndpoint(t *testing.T) {
	handler := newTestServer(t)
	target := createChain(t, handler, "Target", "CORE")
	caller := createChain(t, handler, "Caller", "CORE")

	// Target exposes one output label
	w := doJSON(t, handler, "POST", fmt.Sprintf("/api/v1/chains/%s/metadata", target["id"]), map[string]interface{}{
		"nodes": []map[string]interface{}{
			{"type": "OUTPUT", "name": "Success"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Caller references the target through an input node
	inputID := "61f3f8a0-24a5-4f0e-b9a9-16de31a2b1cd"
	otherID := "7e2cb7a4-0fb4-47b7-9f1e-5a9cf7f6ab02"
	w = doJSON(t, handler, "POST", fmt.Sprintf("/api/v1/chains/%s/metadata", caller["id"]), map[string]interface{}{
		"nodes": []map[string]interface{}{
			{"id": inputID, "type": "INPUT", "name": "Forward", "configuration": map[string]string{"targetChainId": target["id"].(string)}},
			{"id": otherID, "type": "OTHER", "name": "Sink"},
		},
		"relations": []map[string]interface{}{
			{"fromId": inputID, "toId": otherID, "type": "Success"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, handler, "GET", fmt.Sprintf("/api/v1/chains/%s/usages", target["id"]), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var usages []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &usages))
	require.Len(t, usages, 1)
	assert.Equal(t, "Forward", usages[0]["nodeName"])
	assert.Equal(t, "Caller", usages[0]["chainName"])
	assert.Equal(t, []interface{}{"Success"}, usages[0]["labels"])
}

func TestEdgeDeviceAssignment(t *testing.T) {
	handler := newTestServer(t)
	created := createChain(t, handler, "Edge Template", "EDGE")

	deviceID := "0d6c1a2e-3f4b-45c6-97d8-e9f0a1b2c3d4"
	w := doJSON(t, handler, "POST", fmt.Sprintf("/api/v1/chains/%s/edge-devices/%s", created["id"], deviceID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, handler, "DELETE", fmt.Sprintf("/api/v1/chains/%s/edge-devices/%s", created["id"], deviceID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	// A second unassign has nothing to remove
	w = doJSON(t, handler, "DELETE", fmt.Sprintf("/api/v1/chains/%s/edge-devices/%s", created["id"], deviceID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAutoAssignFlags(t *testing.T) {
	handler := newTestServer(t)
	created := createChain(t, handler, "Edge Template", "EDGE")

	w := doJSON(t, handler, "POST", fmt.Sprintf("/api/v1/chains/%s/auto-assign", created["id"]), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["autoAssignToEdge"])

	w = doJSON(t, handler, "DELETE", fmt.Sprintf("/api/v1/chains/%s/auto-assign", created["id"]), nil)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["autoAssignToEdge"])
}
