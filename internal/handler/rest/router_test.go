package rest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/webitel/code-delivery-service/internal/adapter/cache"
	"github.com/webitel/code-delivery-service/internal/adapter/pubsub"
	"github.com/webitel/code-delivery-service/internal/domain/model"
	"github.com/webitel/code-delivery-service/internal/domain/registry"
	"github.com/webitel/code-delivery-service/internal/handler/lp"
	"github.com/webitel/code-delivery-service/internal/handler/marshaller"
	"github.com/webitel/code-delivery-service/internal/handler/sse"
	"github.com/webitel/code-delivery-service/internal/handler/ws"
	"github.com/webitel/code-delivery-service/internal/service"
)

var discard = slog.New(slog.DiscardHandler)

type staticDirectory []model.User

func (d staticDirectory) ListUsers(context.Context) ([]model.User, error) { return d, nil }

func (d staticDirectory) FindByUsername(_ context.Context, username string) (*model.User, error) {
	for _, u := range d {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, model.ErrUserNotFound
}

type testEnv struct {
	srv *httptest.Server
	mr  *miniredis.Miniredis
	reg *registry.Registry
	bus *pubsub.GroupBus
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })

	identity := service.NewIdentityService(cache.NewRedisCache(client, cache.WithLogger(discard)),
		service.WithIdentityLogger(discard), service.WithNegativeCache(0, 0))
	require.NoError(t, identity.Set(ctx, "bob", 42))

	reg := registry.NewRegistry(registry.WithLogger(discard))
	bus := pubsub.NewGroupBus(watermill.NopLogger{}, discard, 100*time.Millisecond)
	t.Cleanup(func() { _ = bus.Close() })

	dispatcher := service.NewDispatcher(reg, bus, service.WithDispatcherLogger(discard))
	deliverer := service.NewDeliveryService(reg, bus, 16, discard)
	ingester := service.NewIngestService(identity, dispatcher, discard)
	worker := service.NewDirectorySyncWorker(staticDirectory{{ID: 42, Username: "bob"}}, identity, time.Hour, time.Second, discard)

	router := NewRouter(Handlers{
		Ingest: NewIngestHandler(discard, ingester),
		Users:  NewUserHandler(identity),
		Ops:    NewOpsHandler(identity, service.NewStatsCollector(reg, bus, identity, worker)),
		Stream: sse.NewStreamHandler(discard, deliverer, time.Hour),
		Poll:   lp.NewLPHandler(deliverer, 200*time.Millisecond),
		WS:     ws.NewWSHandler(discard, deliverer, time.Hour),
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, mr: mr, reg: reg, bus: bus}
}

func (e *testEnv) postIngest(t *testing.T, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(e.srv.URL+"/api/ingest", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealth(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, healthResponse{Status: "ok", CacheAvailable: true}, body)
}

func TestHealthWithCacheOutage(t *testing.T) {
	env := newEnv(t)
	env.mr.Close()

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, body.CacheAvailable)
}

func TestVerifyUser(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.srv.URL + "/api/users/BOB/verify")
	require.NoError(t, err)
	var user model.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&user))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, model.User{ID: 42, Username: "bob"}, user)

	resp, err = http.Get(env.srv.URL + "/api/users/ghost/verify")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIngestResponses(t *testing.T) {
	env := newEnv(t)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"ok without sessions", `{"username":"bob","code":"123"}`, http.StatusOK},
		{"unknown user", `{"username":"ghost","code":"123"}`, http.StatusNotFound},
		{"missing code", `{"username":"bob"}`, http.StatusBadRequest},
		{"long code", `{"username":"bob","code":"` + strings.Repeat("9", 257) + `"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := env.postIngest(t, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp, err := http.Post(env.srv.URL+"/api/ingest", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestViaQuery(t *testing.T) {
	env := newEnv(t)

	q := url.Values{"username": {"bob"}, "code": {"777"}, "source": {"sms"}}
	resp, err := http.Get(env.srv.URL + "/api/ingest?" + q.Encode())
	require.NoError(t, err)
	defer resp.Body.Close()

	var res model.IngestResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, model.IngestResult{Status: "ok", Delivered: 0, UserID: 42}, res)
}

// readFrame reads one SSE frame (up to the blank line), skipping comments.
func readFrame(t *testing.T, r *bufio.Reader) map[string]string {
	t.Helper()
	frame := map[string]string{}
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(frame) > 0 {
				return frame
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		k, v, _ := strings.Cut(line, ": ")
		frame[k] = v
	}
}

func TestStreamReceivesIngestedCode(t *testing.T) {
	env := newEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+"/stream/Bob", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	hello := readFrame(t, r)
	assert.Equal(t, "connected", hello["event"])

	ingestResp, out := env.postIngest(t, `{"username":"BOB","code":"424242","type":"otp"}`)
	assert.Equal(t, http.StatusOK, ingestResp.StatusCode)
	assert.EqualValues(t, 1, out["delivered"])
	assert.EqualValues(t, 42, out["user_id"])

	frame := readFrame(t, r)
	assert.Equal(t, "new_code", frame["event"])
	var payload model.CodePayload
	require.NoError(t, json.Unmarshal([]byte(frame["data"]), &payload))
	assert.Equal(t, "424242", payload.Code)
	assert.Equal(t, "otp", payload.Type)
	assert.Equal(t, "bob", payload.Username)
}

func TestStreamClosedByServer(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.srv.URL + "/stream/bob")
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	readFrame(t, r)

	require.Equal(t, 1, env.reg.Shutdown())

	frame := readFrame(t, r)
	assert.Equal(t, "disconnected", frame["event"])
	_, err = io.ReadAll(r)
	assert.NoError(t, err)
}

func TestPollTimesOut(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.srv.URL + "/poll/bob")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, env.reg.Stats().TotalConnections)
}

func TestPollReturnsBatch(t *testing.T) {
	env := newEnv(t)

	type result struct {
		status int
		body   []byte
	}
	done := make(chan result, 1)
	go func() {
		resp, err := http.Get(env.srv.URL + "/poll/bob")
		if err != nil {
			done <- result{}
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		done <- result{resp.StatusCode, body}
	}()

	require.Eventually(t, func() bool { return len(env.reg.ConnectionsFor("bob")) == 1 }, time.Second, 5*time.Millisecond)
	env.postIngest(t, `{"username":"bob","code":"1"}`)

	res := <-done
	require.Equal(t, http.StatusOK, res.status)
	var batch struct {
		Events []marshaller.Envelope `json:"events"`
	}
	require.NoError(t, json.Unmarshal(res.body, &batch))
	require.Len(t, batch.Events, 1)
	assert.Equal(t, "new_code", batch.Events[0].Event)
}

func TestPollInvalidUsername(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.srv.URL + "/poll/" + strings.Repeat("x", 65))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocketReceivesGroupBroadcast(t *testing.T) {
	env := newEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws?username=Bob"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer c.Close()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))

	var hello marshaller.Envelope
	require.NoError(t, c.ReadJSON(&hello))
	assert.Equal(t, "connected", hello.Event)
	assert.Equal(t, 1, env.bus.Members("bob"))

	_, out := env.postIngest(t, `{"username":"bob","code":"5150"}`)
	assert.EqualValues(t, 1, out["delivered"])

	var got marshaller.Envelope
	require.NoError(t, c.ReadJSON(&got))
	assert.Equal(t, "new_code", got.Event)
	var payload model.CodePayload
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "5150", payload.Code)
}

func TestWebSocketRejectsInvalidUsername(t *testing.T) {
	env := newEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStats(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats model.ServerStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.True(t, stats.CacheAvailable)
	assert.Zero(t, stats.Registry.TotalConnections)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newEnv(t)

	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "code_delivery_")
}
