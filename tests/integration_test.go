package tests

import (
	"io"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nastaran-Nourbakhsh/nova/internal/models"
)

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health endpoint returns plain text "OK"
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}

func TestAuthentication(t *testing.T) {
	env := newTestEnv(t)

	doGet := func(t *testing.T, authorization string) *http.Response {
		t.Helper()

		req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/jobs", nil)
		require.NoError(t, err)

		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}

		resp, err := env.server.Client().Do(req)
		require.NoError(t, err)

		t.Cleanup(func() { _ = resp.Body.Close() })

		return resp
	}

	t.Run("Unauthorized without API key", func(t *testing.T) {
		resp := doGet(t, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Unauthorized with invalid API key", func(t *testing.T) {
		resp := doGet(t, "Bearer wrong-key-12345")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Unauthorized with empty bearer token", func(t *testing.T) {
		resp := doGet(t, "Bearer ")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Unauthorized with malformed Authorization header", func(t *testing.T) {
		resp := doGet(t, "InvalidFormat")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Success with valid API key", func(t *testing.T) {
		resp := doGet(t, "Bearer "+testAPIKey)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestJobLifecycle(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/v1/jobs", map[string]any{"name": "lifecycle job"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var job models.Job

	require.NoError(t, decodeData(resp, &job))
	assert.NotEqual(t, uuid.Nil, job.ID)
	assert.Equal(t, "lifecycle job", job.Name)
	assert.Equal(t, models.JobStatusCreated, job.Status)

	base := "/v1/jobs/" + job.ID.String()

	t.Run("Get returns the job", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got models.Job

		require.NoError(t, decodeData(resp, &got))
		assert.Equal(t, job.ID, got.ID)
	})

	t.Run("Start moves CREATED to SCANNING", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, base+"/start", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got models.Job

		require.NoError(t, decodeData(resp, &got))
		assert.Equal(t, models.JobStatusScanning, got.Status)
	})

	t.Run("Pause and resume toggle SCANNING and PROCESSING", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, base+"/pause", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got models.Job

		require.NoError(t, decodeData(resp, &got))
		assert.Equal(t, models.JobStatusProcessing, got.Status)

		resp = env.request(t, http.MethodPost, base+"/resume", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NoError(t, decodeData(resp, &got))
		assert.Equal(t, models.JobStatusScanning, got.Status)
	})

	t.Run("Complete moves the job to DONE", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, base+"/complete", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got models.Job

		require.NoError(t, decodeData(resp, &got))
		assert.Equal(t, models.JobStatusDone, got.Status)
	})

	t.Run("Terminal jobs reject further transitions", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, base+"/start", nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("List includes the job", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/v1/jobs?status=DONE", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result models.ListJobsResponse

		require.NoError(t, decodeData(resp, &result))

		found := false

		for _, j := range result.Data {
			if j.ID == job.ID {
				found = true
			}
		}

		assert.True(t, found, "job should appear in DONE listing")
	})
}

func TestJobValidation(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Bad request with empty name", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/v1/jobs", map[string]any{"name": ""})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Not found for unknown job", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/v1/jobs/"+uuid.Must(uuid.NewV7()).String(), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("Bad request for malformed UUID", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/v1/jobs/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRingsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	job := env.createScanningJob(t, "rings job")

	base := "/v1/jobs/" + job.ID.String() + "/rings"

	resp := env.request(t, http.MethodPost, base, map[string]any{"label": "tray-1", "position": 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ring models.Ring

	require.NoError(t, decodeData(resp, &ring))
	assert.Equal(t, "tray-1", ring.Label)
	assert.Equal(t, job.ID, ring.JobID)

	t.Run("Repeating a label returns the same ring", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, base, map[string]any{"label": "tray-1"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var again models.Ring

		require.NoError(t, decodeData(resp, &again))
		assert.Equal(t, ring.ID, again.ID)
	})

	t.Run("List returns the job's rings", func(t *testing.T) {
		env.request(t, http.MethodPost, base, map[string]any{"label": "tray-2"})

		resp := env.request(t, http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result models.ListRingsResponse

		require.NoError(t, decodeData(resp, &result))
		assert.Len(t, result.Data, 2)
	})
}

func TestDiamondIngest(t *testing.T) {
	env := newTestEnv(t)
	job := env.createScanningJob(t, "ingest job")

	diamond := env.ingestDiamond(t, job.ID, "tray-1", 0)
	assert.Equal(t, job.ID, diamond.JobID)
	assert.NotNil(t, diamond.RingID)
	assert.Equal(t, 0, diamond.SlotIndex)

	t.Run("Occupied slot is a conflict", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/v1/jobs/"+job.ID.String()+"/diamonds",
			map[string]any{"ring_label": "tray-1", "slot_index": 0})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("Same slot in another ring is fine", func(t *testing.T) {
		other := env.ingestDiamond(t, job.ID, "tray-2", 0)
		assert.NotEqual(t, diamond.ID, other.ID)
	})

	t.Run("Loose diamonds get their own slot namespace", func(t *testing.T) {
		loose := env.ingestDiamond(t, job.ID, "", 0)
		assert.Nil(t, loose.RingID)

		resp := env.request(t, http.MethodPost, "/v1/jobs/"+job.ID.String()+"/diamonds",
			map[string]any{"slot_index": 0})
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("Unknown job is not found", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/v1/jobs/"+uuid.Must(uuid.NewV7()).String()+"/diamonds",
			map[string]any{"slot_index": 1})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("List returns the job's diamonds", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/v1/jobs/"+job.ID.String()+"/diamonds", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result models.ListDiamondsResponse

		require.NoError(t, decodeData(resp, &result))
		assert.EqualValues(t, 3, result.Total)
	})

	t.Run("Delete removes the diamond", func(t *testing.T) {
		victim := env.ingestDiamond(t, job.ID, "tray-3", 7)

		resp := env.request(t, http.MethodDelete, "/v1/diamonds/"+victim.ID.String(), nil)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = env.request(t, http.MethodGet, "/v1/diamonds/"+victim.ID.String(), nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestFeatureRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	job := env.createScanningJob(t, "features job")
	diamond := env.ingestDiamond(t, job.ID, "tray-1", 0)

	feature := env.putFeature(t, diamond.ID, featureSpec{
		AreaPx:      120.5,
		DiamondType: "round",
		Aset:        []float32{1, 0, 0},
		UVFree:      []float32{0, 1, 0},
	})
	assert.Equal(t, diamond.ID, feature.DiamondID)
	assert.Equal(t, "v1", feature.ModelVersion)
	assert.InDelta(t, 120.5, feature.AreaPx, 0.01)
	assert.Len(t, feature.AsetEmbedding, testEmbeddingDim)

	t.Run("Get returns the stored feature", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/v1/diamonds/"+diamond.ID.String()+"/features", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got models.DiamondFeature

		require.NoError(t, decodeData(resp, &got))
		assert.Equal(t, feature.ID, got.ID)
		assert.NotNil(t, got.DiamondType)
	})

	t.Run("Upsert replaces the whole row", func(t *testing.T) {
		updated := env.putFeature(t, diamond.ID, featureSpec{
			AreaPx: 130,
			Aset:   []float32{0, 0, 1},
		})

		// Same (diamond, model_version) row, new content; the omitted
		// channel and type are gone rather than carried over.
		assert.Equal(t, feature.ID, updated.ID)
		assert.InDelta(t, 130, updated.AreaPx, 0.01)
		assert.Nil(t, updated.DiamondType)
		assert.Empty(t, updated.UVFreeEmbedding)
	})

	t.Run("Bad request with non-positive area", func(t *testing.T) {
		resp := env.request(t, http.MethodPut, "/v1/diamonds/"+diamond.ID.String()+"/features",
			map[string]any{"area_px": 0})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Unprocessable with wrong embedding dimension", func(t *testing.T) {
		resp := env.request(t, http.MethodPut, "/v1/diamonds/"+diamond.ID.String()+"/features",
			map[string]any{"area_px": 100, "aset_embedding": []float32{1, 2, 3}})
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})
}

func TestMatchingRunEndpoints(t *testing.T) {
	env := newTestEnv(t)
	job := env.createScanningJob(t, "matching endpoints job")

	d1 := env.ingestDiamond(t, job.ID, "tray-1", 0)
	d2 := env.ingestDiamond(t, job.ID, "tray-2", 0)
	env.putFeature(t, d1.ID, featureSpec{AreaPx: 100, Aset: []float32{1, 0}})
	env.putFeature(t, d2.ID, featureSpec{AreaPx: 100, Aset: []float32{1, 0}})

	run := env.runMatchingSync(t, job.ID, 0.8)
	assert.Equal(t, job.ID, run.JobID)
	assert.Equal(t, "api", run.CreatedBy)
	assert.NotNil(t, run.FinishedAt)
	assert.InDelta(t, 0.8, run.Params.MinConfidence, 1e-9)

	t.Run("Get returns the run", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/v1/matching-runs/"+run.ID.String(), nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got models.MatchingRun

		require.NoError(t, decodeData(resp, &got))
		assert.Equal(t, models.RunStatusDone, got.Status)
	})

	t.Run("GetPairs returns the committed pair", func(t *testing.T) {
		pairs := env.getPairs(t, run.ID)
		require.Len(t, pairs.Data, 1)
		assert.EqualValues(t, 1, pairs.Total)
		assert.Equal(t, models.PairSourceAlgo, pairs.Data[0].Source)
	})

	t.Run("Latest returns the newest DONE run", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/v1/jobs/"+job.ID.String()+"/matching-runs/latest", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got models.MatchingRun

		require.NoError(t, decodeData(resp, &got))
		assert.Equal(t, run.ID, got.ID)
	})

	t.Run("List returns the job's runs", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/v1/jobs/"+job.ID.String()+"/matching-runs", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result models.ListMatchingRunsResponse

		require.NoError(t, decodeData(resp, &result))
		assert.EqualValues(t, 1, result.Total)
	})

	t.Run("Bad request without min_confidence", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/v1/jobs/"+job.ID.String()+"/matching-runs/sync",
			map[string]any{"carry_locked": true})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Bad request with out-of-range min_confidence", func(t *testing.T) {
		resp := env.request(t, http.MethodPost, "/v1/jobs/"+job.ID.String()+"/matching-runs/sync",
			map[string]any{"min_confidence": 1.5})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Async enqueue fails without a queue", func(t *testing.T) {
		// The test stack runs without River; the enqueue path reports the
		// missing queue as a storage failure before creating any run row.
		resp := env.request(t, http.MethodPost, "/v1/jobs/"+job.ID.String()+"/matching-runs",
			map[string]any{"min_confidence": 0.8})
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	})

	t.Run("Pairs of unknown run are not found", func(t *testing.T) {
		resp := env.request(t, http.MethodGet, "/v1/matching-runs/"+uuid.Must(uuid.NewV7()).String()+"/pairs", nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
