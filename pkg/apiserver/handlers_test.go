package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/leasestore/leasestore/pkg/backend"
	"github.com/leasestore/leasestore/pkg/db"
	"github.com/leasestore/leasestore/pkg/model"
	"github.com/leasestore/leasestore/pkg/pool"
)

const testToken = "test-admin-token"

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()

	store, err := db.New(context.Background(), "sqlite", filepath.Join(t.TempDir(), "leases.sqlite"), 0, &gorm.Config{
		Logger: db.NewLogger("info"),
	})
	require.NoError(t, err)

	addrPool, err := pool.New("10.0.0.0/28", []string{"10.0.0.1"})
	require.NoError(t, err)

	back, err := backend.NewBackend(store, addrPool, nil, 0, time.Minute)
	require.NoError(t, err)

	router, err := newRouter(logrus.WithField("test", t.Name()), back, testToken)
	require.NoError(t, err)
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeLease(t *testing.T, rec *httptest.ResponseRecorder) model.LeaseResponse {
	t.Helper()

	var lease model.LeaseResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&lease))
	return lease
}

func TestHealthz_Unauthenticated(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/", "/healthz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, "path %v", path)
	}
}

func TestV1RequiresToken(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("GET", "/v1/leases", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest("GET", "/v1/leases", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, "GET", "/v1/leases", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLeaseLifecycle(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: "AA:BB:CC:00:11:22", IP: "10.0.0.5"})
	require.Equal(t, http.StatusCreated, rec.Code)
	lease := decodeLease(t, rec)
	assert.Equal(t, "aa:bb:cc:00:11:22", lease.Mac)
	assert.Equal(t, "10.0.0.5", lease.IP)

	// The address is taken, a second client is refused
	rec = doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: "DD:EE:FF:33:44:55", IP: "10.0.0.5"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var errResp model.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, http.StatusConflict, errResp.Status)

	rec = doJSON(t, router, "DELETE", "/v1/leases/AA:BB:CC:00:11:22", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: "DD:EE:FF:33:44:55", IP: "10.0.0.5"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, "GET", "/v1/leases", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var leases []model.LeaseResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&leases))
	require.Len(t, leases, 1)
	assert.Equal(t, "dd:ee:ff:33:44:55", leases[0].Mac)
	assert.Equal(t, "10.0.0.5", leases[0].IP)
}

func TestCreateLease_PicksAddressWhenNoneRequested(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: "aa:bb:cc:00:11:22", Hostname: "printer"})
	require.Equal(t, http.StatusCreated, rec.Code)

	lease := decodeLease(t, rec)
	assert.Equal(t, "10.0.0.2", lease.IP)
	assert.Equal(t, "printer", lease.Hostname)
}

func TestCreateLease_Validation(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: "not-a-mac", IP: "10.0.0.5"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: "aa:bb:cc:00:11:22", IP: "banana"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest("POST", "/v1/leases", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestGetLease(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/v1/leases/aa:bb:cc:00:11:22", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, "GET", "/v1/leases/not-a-mac", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: "aa:bb:cc:00:11:22", IP: "10.0.0.5"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, "GET", "/v1/leases/AA:BB:CC:00:11:22", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "10.0.0.5", decodeLease(t, rec).IP)
}

func TestGetIP(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/v1/ips/10.0.0.5", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, "GET", "/v1/ips/banana", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: "aa:bb:cc:00:11:22", IP: "10.0.0.5"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, "GET", "/v1/ips/10.0.0.5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "aa:bb:cc:00:11:22", decodeLease(t, rec).Mac)
}

func TestDeleteLease_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "DELETE", "/v1/leases/aa:bb:cc:00:11:22", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHistoryAndStats(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: "aa:bb:cc:00:11:22", IP: "10.0.0.5"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: "aa:bb:cc:00:11:22", IP: "10.0.0.6"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, "GET", "/v1/leases/aa:bb:cc:00:11:22/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var history []model.LeaseResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	require.Len(t, history, 2)
	assert.True(t, history[0].Deleted)
	assert.Equal(t, "10.0.0.5", history[0].IP)
	assert.False(t, history[1].Deleted)

	rec = doJSON(t, router, "GET", "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.EqualValues(t, 1, stats.ActiveLeases)
	assert.EqualValues(t, 2, stats.TotalEntries)
	assert.Equal(t, 12, stats.FreeAddresses)
}

func TestPoolExhaustionMapsToConflict(t *testing.T) {
	router := newTestRouter(t)

	// 13 usable addresses in 10.0.0.0/28 once the gateway is reserved
	for i := 0; i < 13; i++ {
		rec := doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: macForIndex(i)})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, router, "POST", "/v1/leases", model.LeaseRequest{Mac: "aa:bb:cc:00:02:00"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func macForIndex(i int) string {
	const hexdigits = "0123456789abcdef"
	return "aa:bb:cc:00:01:" + string(hexdigits[i/16]) + string(hexdigits[i%16])
}

func TestUnknownRouteIs404(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/v1/nonsense", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
