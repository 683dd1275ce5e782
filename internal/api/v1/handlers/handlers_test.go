package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1routes "speaker-split/internal/api/v1/routes"
	"speaker-split/internal/app/credits"
	"speaker-split/internal/app/gate"
	"speaker-split/internal/app/jobs"
	"speaker-split/internal/app/relay"
	"speaker-split/internal/config"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jobStore := jobs.NewMemoryStore()
	plans := config.DefaultPlans()

	creditsSvc := credits.NewService(credits.NewMemoryStore(), plans, &credits.StaticTierResolver{}, logger)
	streamRelay := relay.New(relay.Options{
		Mode:         relay.ModeSimulation,
		StepInterval: time.Millisecond,
	}, jobStore, logger, relay.NewMetrics(prometheus.NewRegistry()))
	quotaGate := gate.New(creditsSvc, streamRelay, logger, gate.NewMetrics(prometheus.NewRegistry()))

	router := gin.New()
	v1 := router.Group("/api/v1")
	v1routes.RegisterRoutes(v1, &v1routes.ServiceContainer{
		Jobs:    jobStore,
		Credits: creditsSvc,
		Gate:    quotaGate,
		Plans:   plans,
		Logger:  logger,
	})
	return router
}

func doJSON(router *gin.Engine, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProcess_StreamsEventsAndTracksJob(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/process/speaker-split", "alice",
		map[string]interface{}{"audioPath": "/tmp/a.wav", "speakerCount": 2})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))
	jobID := w.Header().Get("X-Job-ID")
	require.NotEmpty(t, jobID)

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), "line is not valid JSON: %s", line)
	}

	var terminal map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &terminal))
	assert.Equal(t, float64(100), terminal["progress"])
	assert.NotContains(t, terminal, "error")

	// The job record reflects the finished stream.
	w = doJSON(router, http.MethodGet, "/api/v1/jobs/"+jobID, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var job map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.Equal(t, "complete", job["status"])
	assert.Equal(t, float64(100), job["progress"])
	assert.NotEmpty(t, job["outputs"])

	// Exactly one credit was spent.
	w = doJSON(router, http.MethodGet, "/api/v1/credits", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot struct {
		Credits map[string]struct {
			Remaining int `json:"remaining"`
			Ceiling   int `json:"ceiling"`
		} `json:"credits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, 2, snapshot.Credits["speakerSplit"].Remaining)
	assert.Equal(t, 3, snapshot.Credits["speakerSplit"].Ceiling)
	assert.Equal(t, 5, snapshot.Credits["transcription"].Remaining)
}

func TestProcess_UnknownCapability(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/process/teleportation", "alice",
		map[string]interface{}{"audioPath": "/tmp/a.wav"})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "bad_request", body["kind"])
}

func TestProcess_MissingAudioPath(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/process/transcription", "alice",
		map[string]interface{}{"speakerCount": 2})

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestProcess_QuotaExhaustedStreamsTerminalError(t *testing.T) {
	router := setupRouter(t)

	// voiceClone has a single free credit.
	w := doJSON(router, http.MethodPost, "/api/v1/process/voice-clone", "bob",
		map[string]interface{}{"audioPath": "/tmp/a.wav"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/process/voice-clone", "bob",
		map[string]interface{}{"audioPath": "/tmp/a.wav"})
	require.Equal(t, http.StatusOK, w.Code, "rejection arrives as a stream event, not an HTTP error")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 1)

	var terminal map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &terminal))
	assert.Contains(t, terminal["error"], "out of voiceClone credits")
}

func TestJob_PollUnknownID(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/jobs/no-such-job", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unknown", body["status"])
	assert.Equal(t, "no-such-job", body["id"])
}

func TestCredits_AnonymousDefault(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/credits", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "anonymous", body["userId"])
	assert.Equal(t, "free", body["tier"])
}

func TestCredits_DeductEndpoint(t *testing.T) {
	router := setupRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/credits/deduct", "carol",
		map[string]interface{}{"capability": "document"})
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot struct {
		Credits map[string]struct {
			Remaining int `json:"remaining"`
		} `json:"credits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, 1, snapshot.Credits["document"].Remaining)

	// Drain and hit the floor.
	w = doJSON(router, http.MethodPost, "/api/v1/credits/deduct", "carol",
		map[string]interface{}{"capability": "document"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/credits/deduct", "carol",
		map[string]interface{}{"capability": "document"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "quota_exhausted", body["kind"])
}
