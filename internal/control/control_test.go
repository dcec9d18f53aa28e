package control_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coolbox13/omfietser-processor/internal/batch"
	"github.com/coolbox13/omfietser-processor/internal/control"
	"github.com/coolbox13/omfietser-processor/internal/domain"
	"github.com/coolbox13/omfietser-processor/internal/job"
	"github.com/coolbox13/omfietser-processor/internal/storage"
	"github.com/coolbox13/omfietser-processor/internal/transform"
)

func newTestRouter(t *testing.T) (http.Handler, storage.Contract) {
	t.Helper()
	mem := storage.NewMemory()
	contract := storage.NewMemoryContract(mem)
	manager := job.NewManager(contract, batch.NewAdapter(transform.NewRegistry(), nil), nil, nil)
	return control.NewRouter(manager, contract, nil, nil, "1.0.0", false), contract
}

func decodeEnvelope(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestCreateJobRejectsUnknownShopType(t *testing.T) {
	router, _ := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Post(server.URL+"/jobs", "application/json", strings.NewReader(`{"shop_type":"bol"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeEnvelope(t, resp)
	require.Equal(t, false, body["success"])
}

func TestCreateStartAndFetchJobLifecycle(t *testing.T) {
	router, contract := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	_, err := contract.Raw.Insert(t.Context(), domain.RawRow{
		ShopType: "ah",
		RawData: map[string]interface{}{
			"title": "Melk", "price": 1.29, "ean": "1234567890123",
		},
		ScrapedAt: time.Now(),
	})
	require.NoError(t, err)

	createResp, err := http.Post(server.URL+"/jobs", "application/json", strings.NewReader(`{"shop_type":"ah"}`))
	require.NoError(t, err)
	defer createResp.Body.Close()
	require.Equal(t, http.StatusCreated, createResp.StatusCode)

	created := decodeEnvelope(t, createResp)
	data := created["data"].(map[string]interface{})
	jobID := data["id"].(string)
	require.NotEmpty(t, jobID)

	startResp, err := http.Post(server.URL+"/jobs/"+jobID+"/start", "application/json", nil)
	require.NoError(t, err)
	defer startResp.Body.Close()
	require.Equal(t, http.StatusOK, startResp.StatusCode)

	getResp, err := http.Get(server.URL + "/jobs/" + jobID)
	require.NoError(t, err)
	defer getResp.Body.Close()
	require.Equal(t, http.StatusOK, getResp.StatusCode)
}

func TestCancelUnknownJobReturnsNotFound(t *testing.T) {
	router, _ := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Post(server.URL+"/jobs/missing/cancel", "application/json", strings.NewReader(`{"reason":"no such job"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndReadyReturnOK(t *testing.T) {
	router, _ := newTestRouter(t)
	server := httptest.NewServer(router)
	defer server.Close()

	healthResp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer healthResp.Body.Close()
	require.Equal(t, http.StatusOK, healthResp.StatusCode)

	readyResp, err := http.Get(server.URL + "/ready")
	require.NoError(t, err)
	defer readyResp.Body.Close()
	require.Equal(t, http.StatusOK, readyResp.StatusCode)
}
