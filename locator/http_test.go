package locator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/uianchor/device"
	"github.com/hazyhaar/uianchor/fallback"
	"github.com/hazyhaar/uianchor/internal/fixture"
	"github.com/hazyhaar/uianchor/shield"
)

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHTTP_Healthz(t *testing.T) {
	h := newLocator(t).Handler()
	rec := do(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get(shield.RequestIDHeader))
}

func TestHTTP_Index(t *testing.T) {
	h := newLocator(t).Handler()

	rec := do(t, h, http.MethodPost, "/v1/index", map[string]string{"dump": fixture.Feed})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 42, out["nodes"])
	assert.NotEmpty(t, out["snapshot_hash"])

	rec = do(t, h, http.MethodPost, "/v1/index", map[string]string{"dump": "<hierarchy"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/index", bytes.NewBufferString("{"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_Match(t *testing.T) {
	h := newLocator(t).Handler()
	rec := do(t, h, http.MethodPost, "/v1/match", map[string]any{
		"dump":   fixture.Feed,
		"anchor": followAnchor(t),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rep := decodeBody[struct {
		Node int           `json:"node"`
		Plan fallback.Plan `json:"plan"`
	}](t, rec)
	assert.Equal(t, 7, rep.Node)
	require.NotEmpty(t, rep.Plan.Variants)
	assert.NotNil(t, rep.Plan.Variants[0].Instruction.Mode, "instruction survives the wire")
}

func TestHTTP_Gate(t *testing.T) {
	h := newLocator(t).Handler()

	rec := do(t, h, http.MethodPost, "/v1/gate", map[string]any{
		"selector": "//node[@resource-id='com.xingin.xhs:id/follow_btn']",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	quick := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, quick["quick_check"])

	rec = do(t, h, http.MethodPost, "/v1/gate", map[string]any{
		"dump":     fixture.Feed,
		"selector": "//node[",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_Normalize(t *testing.T) {
	h := newLocator(t).Handler()

	rec := do(t, h, http.MethodPost, "/v1/normalize", map[string]string{
		"dump":   fixture.Feed,
		"bounds": "[24,370][528,880]",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/normalize", map[string]string{
		"dump":   fixture.Feed,
		"bounds": "[1,2][3",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTP_ExecuteAndAudit(t *testing.T) {
	loc := newLocator(t, WithDevice(device.NewReplay(fixture.FeedScrolled)))
	h := loc.Handler()

	rec := do(t, h, http.MethodPost, "/v1/execute", ExecRequest{Anchor: followAnchor(t)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, res["success"])
	runID, _ := res["run_id"].(string)
	require.NotEmpty(t, runID)

	rec = do(t, h, http.MethodGet, "/v1/audit?status=success&since=1h", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var audit struct {
		Runs []struct {
			RunID     string `json:"run_id"`
			RequestID string `json:"request_id"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audit))
	require.Len(t, audit.Runs, 1)
	assert.Equal(t, runID, audit.Runs[0].RunID)
	assert.NotEmpty(t, audit.Runs[0].RequestID, "request id from the shield stack")

	rec = do(t, h, http.MethodGet, "/v1/audit?status=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/audit?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeBody[Stats](t, rec)
	assert.Equal(t, int64(1), st.Success.Count)
}

func TestHTTP_ExecuteWithoutDevice(t *testing.T) {
	h := newLocator(t).Handler()
	rec := do(t, h, http.MethodPost, "/v1/execute", ExecRequest{Anchor: followAnchor(t)})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	res := decodeBody[map[string]any](t, rec)
	assert.Equal(t, false, res["success"])
	assert.Equal(t, ErrNoDevice.Error(), res["error_reason"])
}

func TestHTTP_RecoverWithoutOriginal(t *testing.T) {
	h := newLocator(t).Handler()
	rec := do(t, h, http.MethodPost, "/v1/recover", map[string]any{
		"params": map[string]any{"key_attributes": map[string]string{"text": "关注"}},
		"dump":   fixture.FeedScrolled,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
