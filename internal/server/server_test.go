package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceviz/internal/state"
	"traceviz/internal/storage"
)

const traceJSON = `{
	"name": "assign-card",
	"durableExecutionId": "exec-1",
	"scheduledAt": "2024-05-01T10:00:00Z",
	"completedAt": "2024-05-01T10:00:20Z",
	"payload": "card c-1",
	"status": "completed",
	"version": 2,
	"steps": [{
		"durableStepId": "reserve-card",
		"result": "reserved",
		"scheduledAt": "2024-05-01T10:00:00Z",
		"completedAt": "2024-05-01T10:00:10Z",
		"inTaskInfo": {"id": "t1", "taskName": "reserve", "executionTime": "2024-05-01T10:00:00Z",
			"consecutiveFailures": 0, "executionVersion": 1}
	}, {
		"durableStepId": "notify",
		"scheduledAt": "2024-05-01T10:00:10Z",
		"inTaskInfo": {"id": "t2", "taskName": "notify", "executionTime": "2024-05-01T10:00:10Z",
			"consecutiveFailures": 1, "executionVersion": 1}
	}]
}`

func newTestServer(t *testing.T) (*Server, *state.Store) {
	t.Helper()
	slot, err := storage.NewFileSlot(t.TempDir())
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := state.New(slot, state.DefaultKey, logger)
	return New(":0", store, logger), store
}

func do(t *testing.T, srv *Server, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func postForm(t *testing.T, srv *Server, target string, values url.Values) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, srv, http.MethodPost, target, strings.NewReader(values.Encode()), "application/x-www-form-urlencoded")
}

func TestIndexShowsInputWhenEmpty(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please paste the durable trace json")
	assert.Contains(t, rec.Body.String(), `name="payload"`)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/missing", nil, "").Code)
}

func TestFormLoadRendersTimeline(t *testing.T) {
	srv, store := newTestServer(t)

	rec := postForm(t, srv, "/trace", url.Values{"payload": {traceJSON}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.True(t, store.Loaded())

	rec = do(t, srv, http.MethodGet, "/", nil, "")
	body := rec.Body.String()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "Durable Trace (assign-card)")
	assert.Contains(t, body, "Total Duration: 20 Seconds")
	assert.Contains(t, body, "status-completed")
	assert.Contains(t, body, "Version: 2")
	assert.Contains(t, body, "card c-1")
	assert.Contains(t, body, "left: 0%; width: 50%;")
	assert.Contains(t, body, "left: 50%; width: 2%;")
	assert.Contains(t, body, "Not completed")
	assert.NotContains(t, body, "Step Details")
}

func TestStepDetailPanel(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.LoadText(traceJSON))

	body := do(t, srv, http.MethodGet, "/?step=reserve-card", nil, "").Body.String()
	assert.Contains(t, body, "Step Details")
	assert.Contains(t, body, "reserved")
	assert.Contains(t, body, "&#34;taskName&#34;: &#34;reserve&#34;")

	body = do(t, srv, http.MethodGet, "/?step=nope", nil, "").Body.String()
	assert.NotContains(t, body, "Step Details")
}

func TestFormLoadInvalidShowsOverlay(t *testing.T) {
	srv, store := newTestServer(t)

	rec := postForm(t, srv, "/trace", url.Values{"payload": {"{not json"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Invalid Json. Please paste a valid durable trace json:")
	assert.Contains(t, body, "invalid character")
	assert.Contains(t, body, "{not json</textarea>")
	assert.False(t, store.Loaded())
}

func TestClearKeepsInputAvailable(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.LoadText(traceJSON))

	rec := postForm(t, srv, "/trace/clear", url.Values{})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.False(t, store.Loaded())

	assert.True(t, store.Restore(), "snapshot survives a clear")
}

func TestAPITraceLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodGet, "/api/trace", nil, "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodGet, "/api/timeline", nil, "").Code)

	rec := do(t, srv, http.MethodPost, "/api/trace", strings.NewReader(traceJSON), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	var view timelineView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "assign-card", view.Name)
	assert.Equal(t, "completed", view.Status)
	assert.Equal(t, 20.0, view.Layout.WindowSeconds)
	require.Len(t, view.Layout.Bars, 2)
	assert.Equal(t, 50.0, view.Layout.Bars[0].Geometry.Width)
	assert.Equal(t, 2.0, view.Layout.Bars[1].Geometry.Width)
	assert.Equal(t, 1, view.Summary.PendingSteps)

	rec = do(t, srv, http.MethodGet, "/api/trace", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"durableExecutionId":"exec-1"`)

	rec = do(t, srv, http.MethodGet, "/api/timeline", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodDelete, "/api/trace", nil, "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, srv, http.MethodGet, "/api/trace", nil, "").Code)
}

func TestAPIPostAnswersWithPostedTraceAfterConcurrentClear(t *testing.T) {
	srv, store := newTestServer(t)
	// a clear that lands right after the load, before the handler answers
	store.Subscribe(func(evt state.Event) {
		if evt.Kind == state.EventLoaded {
			store.Clear()
		}
	})

	rec := do(t, srv, http.MethodPost, "/api/trace", strings.NewReader(traceJSON), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	var view timelineView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "assign-card", view.Name)
	assert.Equal(t, "exec-1", view.ExecutionID)
	assert.Len(t, view.Layout.Bars, 2)
	assert.False(t, store.Loaded())
}

func TestAPITraceErrors(t *testing.T) {
	srv, store := newTestServer(t)

	rec := do(t, srv, http.MethodPost, "/api/trace", strings.NewReader("{not json"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "malformed_json", resp["kind"])
	assert.NotEmpty(t, resp["error"])

	rec = do(t, srv, http.MethodPost, "/api/trace", strings.NewReader(`{"name":"x"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "schema_mismatch", resp["kind"])
	assert.False(t, store.Loaded())

	assert.Equal(t, http.StatusMethodNotAllowed, do(t, srv, http.MethodPatch, "/api/trace", nil, "").Code)
}

func TestAPIStep(t *testing.T) {
	srv, store := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/steps/notify", nil, "").Code)
	require.NoError(t, store.LoadText(traceJSON))

	rec := do(t, srv, http.MethodGet, "/api/steps/notify", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var step stepView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &step))
	assert.Equal(t, "notify", step.StepID)
	assert.Equal(t, "-", step.CompletedAt)
	assert.Equal(t, "-", step.Result)
	assert.Empty(t, step.OutTask)
	assert.Contains(t, step.InTask, `"consecutiveFailures": 1`)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/api/steps/unknown", nil, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/api/steps/", nil, "").Code)
}

func TestLiveUpdates(t *testing.T) {
	srv, store := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var msg liveMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Event)
	assert.False(t, msg.Loaded)

	require.NoError(t, store.LoadText(traceJSON))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "loaded", msg.Event)
	require.NotNil(t, msg.Timeline)
	assert.Equal(t, "assign-card", msg.Timeline.Name)

	store.Clear()
	msg = liveMessage{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "cleared", msg.Event)
	assert.Nil(t, msg.Timeline)
}

func TestLiveRejectsForeignOrigin(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	header := http.Header{"Origin": {"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
