package controller

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/polyvisor/pulse/app/api/controller/types"
	apptypes "github.com/polyvisor/pulse/app/api/types"
	"github.com/polyvisor/pulse/pkg/analytics"
	"github.com/polyvisor/pulse/pkg/health"
	"github.com/polyvisor/pulse/pkg/reputation"
	"github.com/polyvisor/pulse/pkg/store"
	"github.com/polyvisor/pulse/pkg/trust"
	"github.com/polyvisor/pulse/pkg/zk"
)

const testToken = "test-token"

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	logger := zaptest.NewLogger(t)
	st := store.NewMemory()

	pipeline := zk.NewPipeline(zk.DefaultCatalog(), &zk.MockBackend{}, logger)
	cfg := analytics.DefaultConfig()
	cfg.Scheduler = zk.SchedulerConfig{Workers: 1, QueueSize: 16}
	svc := analytics.NewService(cfg, pipeline, reputation.NewTracker(logger),
		health.NewService(st, logger), st, trust.NewRegistry(logger, []string{"node-a"}), nil, logger)
	t.Cleanup(svc.Close)

	c := &Controller{
		App:       &apptypes.App{Service: svc, Store: st, Logger: logger},
		APIToken:  testToken,
		JWTSecret: []byte("secret"),
	}
	router, err := c.NewRouter()
	require.NoError(t, err)
	return router
}

func submitBody() []byte {
	req := types.SubmitRequest{
		MetricType:  "block_time",
		PrivateData: []string{"6000", "6100", "5900", "6200"},
		DataSources: []types.DataSourceRequest{
			{SourceType: "validator_node", SourceID: "val-1", Timestamp: 1700000000, ReliabilityScore: 95},
			{SourceType: "full_node", SourceID: "full-1", Timestamp: 1700000000, ReliabilityScore: 90},
		},
		PublicMetric:    "6050",
		QualityScore:    90,
		TimeWindowHours: 1,
		Contributor:     "node-a",
	}
	body, _ := json.Marshal(req)
	return body
}

func doRequest(router *mux.Router, method, path string, body []byte, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func submitAndWait(t *testing.T, router *mux.Router) string {
	t.Helper()
	rec := doRequest(router, http.MethodPost, "/api/metrics", submitBody(), true)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var handle zk.Handle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &handle))
	require.NotEmpty(t, handle.ProofID)

	require.Eventually(t, func() bool {
		status := doRequest(router, http.MethodGet, "/api/proofs/"+handle.ProofID, nil, true)
		if status.Code != http.StatusOK {
			return false
		}
		var h zk.Handle
		if err := json.Unmarshal(status.Body.Bytes(), &h); err != nil {
			return false
		}
		return h.Status == zk.StatusCompleted
	}, 5*time.Second, 5*time.Millisecond)
	return handle.ProofID
}

func TestSubmitRequiresAuth(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(router, http.MethodPost, "/api/metrics", submitBody(), false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitRejectsBadJSON(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(router, http.MethodPost, "/api/metrics", []byte("{not json"), true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitUntrustedContributor(t *testing.T) {
	router := newTestRouter(t)

	var req types.SubmitRequest
	require.NoError(t, json.Unmarshal(submitBody(), &req))
	req.Contributor = "node-z"
	body, _ := json.Marshal(req)

	rec := doRequest(router, http.MethodPost, "/api/metrics", body, true)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSubmitLowQualityIsUnprocessable(t *testing.T) {
	router := newTestRouter(t)

	var req types.SubmitRequest
	require.NoError(t, json.Unmarshal(submitBody(), &req))
	req.QualityScore = 10
	body, _ := json.Marshal(req)

	rec := doRequest(router, http.MethodPost, "/api/metrics", body, true)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSubmitThenReadMetric(t *testing.T) {
	router := newTestRouter(t)
	submitAndWait(t, router)

	// Anonymous read defaults to the low tier: exact value, hidden source.
	rec := doRequest(router, http.MethodGet, "/api/metrics/block_time", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.MetricResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "6050", resp.Value)
	assert.Equal(t, "anonymous", resp.SourceNode)
	assert.Equal(t, "low", resp.Tier)
}

func TestReadMetricAnonymousTierIsCapped(t *testing.T) {
	router := newTestRouter(t)
	submitAndWait(t, router)

	// Anonymous viewers asking for the minimal tier are held at medium.
	rec := doRequest(router, http.MethodGet, "/api/metrics/block_time?tier=minimal", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.MetricResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "medium", resp.Tier)
	assert.Equal(t, "anonymous", resp.SourceNode)

	// Authenticated viewers get what they ask for.
	rec = doRequest(router, http.MethodGet, "/api/metrics/block_time?tier=minimal", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "minimal", resp.Tier)
	assert.Equal(t, "node-a", resp.SourceNode)
}

func TestReadMetricNotFound(t *testing.T) {
	router := newTestRouter(t)
	rec := doRequest(router, http.MethodGet, "/api/metrics/block_time", nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProofLifecycleEndpoints(t *testing.T) {
	router := newTestRouter(t)
	proofID := submitAndWait(t, router)

	// Stored proof bytes round-trip through the data endpoint.
	rec := doRequest(router, http.MethodGet, "/api/proofs/"+proofID+"/data", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var proof zk.Proof
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proof))
	assert.NotEmpty(t, proof.ProofData)

	// The proof verifies through the verify endpoint.
	body, _ := json.Marshal(proof)
	rec = doRequest(router, http.MethodPost, "/api/proofs/verify", body, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var report zk.VerificationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Valid)

	// Batch verification reports per proof, in order.
	batchBody, _ := json.Marshal([]zk.Proof{proof, proof})
	rec = doRequest(router, http.MethodPost, "/api/proofs/verify/batch", batchBody, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var reports []zk.VerificationReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reports))
	require.Len(t, reports, 2)
	assert.True(t, reports[0].Valid)
	assert.True(t, reports[1].Valid)

	// Cancelling a completed job is a no-op that reports the final state.
	rec = doRequest(router, http.MethodDelete, "/api/proofs/"+proofID, nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	// Unknown proofs are 404s.
	rec = doRequest(router, http.MethodGet, "/api/proofs/no-such-proof", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContributorStatsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	submitAndWait(t, router)

	rec := doRequest(router, http.MethodGet, "/api/contributors/node-a", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var record reputation.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &record))
	assert.Equal(t, uint64(1), record.TotalContributions)

	rec = doRequest(router, http.MethodGet, "/api/contributors/node-z", nil, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpointIsPublic(t *testing.T) {
	router := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/api/health", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	var score health.Score
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &score))
	assert.Equal(t, health.StatusCritical, score.Status)
}

func TestStatsEndpoint(t *testing.T) {
	router := newTestRouter(t)
	submitAndWait(t, router)

	rec := doRequest(router, http.MethodGet, "/api/stats", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats analytics.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats.Pipeline.ProofsGenerated)
	assert.Equal(t, 1, stats.Jobs[zk.StatusCompleted])
}
