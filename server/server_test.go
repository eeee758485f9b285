package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsinghua-fib-lab/green-corridor/clock"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
	"github.com/tsinghua-fib-lab/green-corridor/task"
	"github.com/tsinghua-fib-lab/green-corridor/utils/config"
)

var epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

type response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Path    string          `json:"path"`
}

type harness struct {
	t     *testing.T
	srv   *httptest.Server
	ctx   *task.Context
	clock *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	fake := clock.Fake(epoch)
	ctx, err := task.NewContext(config.Default(), task.WithClock(fake))
	require.NoError(t, err)
	srv := httptest.NewServer(ctx.Handler())
	t.Cleanup(func() {
		ctx.Close()
		srv.Close()
	})
	return &harness{t: t, srv: srv, ctx: ctx, clock: fake}
}

func (h *harness) do(method, path, body string) (int, response) {
	h.t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, bytes.NewReader([]byte(body)))
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.srv.Client().Do(req)
	require.NoError(h.t, err)
	defer resp.Body.Close()
	var r response
	require.NoError(h.t, json.NewDecoder(resp.Body).Decode(&r))
	return resp.StatusCode, r
}

func decodeData[T any](t *testing.T, r response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

const corridorBody = `{"vehicleId":"AMB-1","vehicleType":"ambulance","route":{"coordinates":[
	{"latitude":28.60,"longitude":77.20},{"latitude":28.61,"longitude":77.20},
	{"latitude":28.62,"longitude":77.20},{"latitude":28.63,"longitude":77.20},
	{"latitude":28.64,"longitude":77.20},{"latitude":28.65,"longitude":77.20},
	{"latitude":28.66,"longitude":77.20}]}}`

func TestSignalEndpoints(t *testing.T) {
	h := newHarness(t)

	status, r := h.do(http.MethodPost, "/signals", `{"signalId":"S1","location":{"latitude":28.61,"longitude":77.20}}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.True(t, r.Success)
	s := decodeData[struct{ Signal entity.Signal }](t, r).Signal
	assert.Equal(t, "S1", s.SignalID)
	assert.Equal(t, entity.LightRed, s.CurrentState)
	assert.False(t, s.IsOverridden)

	status, r = h.do(http.MethodPost, "/api/signals/init", `{"signalId":"S2","location":{"latitude":28.62,"longitude":77.21},"currentState":"green"}`)
	assert.Equal(t, http.StatusCreated, status)

	status, r = h.do(http.MethodPost, "/signals", `{"signalId":"S3"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, r.Success)
	status, _ = h.do(http.MethodPost, "/signals", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, r = h.do(http.MethodGet, "/signals", "")
	assert.Equal(t, http.StatusOK, status)
	list := decodeData[struct {
		Count   int
		Signals []entity.Signal
	}](t, r)
	assert.Equal(t, 2, list.Count)

	status, _ = h.do(http.MethodGet, "/signals/S1", "")
	assert.Equal(t, http.StatusOK, status)
	status, r = h.do(http.MethodGet, "/signals/NOPE", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, r.Message, "NOPE")

	status, _ = h.do(http.MethodPatch, "/signals/S1/state", `{"state":"purple"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = h.do(http.MethodPatch, "/signals/NOPE/state", `{"state":"green"}`)
	assert.Equal(t, http.StatusNotFound, status)
	status, r = h.do(http.MethodPatch, "/signals/S1/state", `{"state":"yellow"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, entity.LightYellow, decodeData[struct{ Signal entity.Signal }](t, r).Signal.CurrentState)

	_, err := h.ctx.CorridorManager().OverrideSignal("S1", "V1", time.Minute)
	require.NoError(t, err)
	status, r = h.do(http.MethodPost, "/signals/S1/reset", "")
	assert.Equal(t, http.StatusOK, status)
	s = decodeData[struct{ Signal entity.Signal }](t, r).Signal
	assert.Equal(t, entity.LightRed, s.CurrentState)
	assert.False(t, s.IsOverridden)
	assert.Empty(t, s.EmergencyVehicles)
	assert.Empty(t, h.ctx.Registry().Leases())
	status, _ = h.do(http.MethodPost, "/signals/NOPE/reset", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.do(http.MethodDelete, "/signals/S2", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do(http.MethodDelete, "/signals/S2", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestCorridorEndpoints(t *testing.T) {
	h := newHarness(t)

	status, r := h.do(http.MethodPost, "/corridor", corridorBody)
	require.Equal(t, http.StatusCreated, status, r.Message)
	c := decodeData[struct{ Corridor entity.Corridor }](t, r).Corridor
	assert.Len(t, c.AffectedSignals, 7)
	assert.Equal(t, entity.CorridorActive, c.Status)
	assert.Equal(t, "high", c.Priority)

	status, _ = h.do(http.MethodPost, "/emergency/corridor", corridorBody)
	assert.Equal(t, http.StatusConflict, status)

	status, r = h.do(http.MethodPost, "/corridor", `{"vehicleId":"AMB-2","vehicleType":"ambulance","route":{"coordinates":[{"latitude":1,"longitude":1}]}}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, r.Message, "at least 2 coordinates")

	status, r = h.do(http.MethodGet, "/api/emergency/corridor", "")
	assert.Equal(t, http.StatusOK, status)
	list := decodeData[struct {
		Count     int
		Corridors []entity.Corridor
	}](t, r)
	assert.Equal(t, 1, list.Count)

	status, _ = h.do(http.MethodGet, "/corridor/AMB-1", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do(http.MethodGet, "/corridor/NOBODY", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.do(http.MethodPatch, "/vehicle/AMB-1/location", `{"latitude":28.62}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = h.do(http.MethodPatch, "/vehicle/NOBODY/location", `{"latitude":28.62,"longitude":77.20}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, r = h.do(http.MethodPatch, "/vehicle/AMB-1/location", `{"latitude":28.62,"longitude":77.20,"speed":14.2}`)
	assert.Equal(t, http.StatusOK, status)
	res := decodeData[entity.LocationUpdateResult](t, r)
	assert.Equal(t, 5, res.UpcomingSignals)
	assert.Equal(t, []string{"SIGNAL_003", "SIGNAL_004", "SIGNAL_005", "SIGNAL_006", "SIGNAL_007"}, res.Window)
	assert.Len(t, h.ctx.Registry().LeasesForVehicle("AMB-1"), 5)

	status, _ = h.do(http.MethodDelete, "/corridor/AMB-1", "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = h.do(http.MethodDelete, "/corridor/AMB-1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, h.ctx.Registry().Leases())
	status, _ = h.do(http.MethodGet, "/corridor/AMB-1", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestOverrideEndpoint(t *testing.T) {
	h := newHarness(t)

	status, r := h.do(http.MethodPost, "/override", `{"signalId":"S1","vehicleId":"V1"}`)
	assert.Equal(t, http.StatusOK, status)
	l := decodeData[struct{ Override entity.Lease }](t, r).Override
	assert.Equal(t, 60.0, l.Duration)
	assert.Equal(t, epoch.Add(time.Minute), l.ExpiresAt.UTC())

	status, r = h.do(http.MethodPost, "/api/emergency/override", `{"signalId":"S1","vehicleId":"V1","duration":120}`)
	assert.Equal(t, http.StatusOK, status)
	l = decodeData[struct{ Override entity.Lease }](t, r).Override
	assert.Equal(t, 120.0, l.Duration)

	status, _ = h.do(http.MethodPost, "/override", `{"signalId":"S1"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = h.do(http.MethodPost, "/override", `{"signalId":"S1","vehicleId":"V1","duration":-1}`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthAndNotFound(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.srv.URL + "/health")
	require.NoError(t, err)
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "OK", health["status"])
	assert.Equal(t, "production", health["mode"])
	assert.Contains(t, health, "uptime")

	status, r := h.do(http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Route not found", r.Message)
	assert.Equal(t, "/nowhere", r.Path)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req, err := http.NewRequest(http.MethodOptions, h.srv.URL+"/corridor", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	resp, err := h.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodPatch)
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.ctx.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)

	status, _ := h.do(http.MethodPost, "/override", `{"signalId":"S1","vehicleId":"V1","duration":5}`)
	require.Equal(t, http.StatusOK, status)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e entity.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, entity.EventLeaseGranted, e.Type)
	assert.Equal(t, "S1", e.SignalID)
	assert.Equal(t, "V1", e.VehicleID)
	assert.NotEmpty(t, e.ID)

	conn.Close()
	require.Eventually(t, func() bool { return h.ctx.Hub().Clients() == 0 }, time.Second, 5*time.Millisecond)
}
