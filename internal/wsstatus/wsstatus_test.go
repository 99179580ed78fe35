package wsstatus

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blasphemetheus/d2d-responder/internal/api/middleware"
	"github.com/blasphemetheus/d2d-responder/internal/radio"
)

// fakeBackend is a minimal radio.Backend for exercising the status
// routes without a real driver, mirroring internal/eventsink's test
// fake.
type fakeBackend struct {
	connected bool
	settings  radio.Config
}

func (f *fakeBackend) Connect(context.Context) error    { f.connected = true; return nil }
func (f *fakeBackend) Disconnect(context.Context) error { f.connected = false; return nil }
func (f *fakeBackend) Connected() bool                  { return f.connected }
func (f *fakeBackend) Transmit(context.Context, []byte) (radio.Outcome, error) {
	return radio.Ok, nil
}
func (f *fakeBackend) ReceiveMode(context.Context, int) error       { return nil }
func (f *fakeBackend) Subscribe(radio.SubscriberID, chan<- radio.Event) {}
func (f *fakeBackend) Unsubscribe(radio.SubscriberID)                {}
func (f *fakeBackend) Settings() radio.Config                        { return f.settings }

func testConfig() Config {
	return Config{
		Addr:      ":0",
		AuthToken: "trial-secret",
		JWT: middleware.JWTConfig{
			SecretKey:  "test-secret",
			Expiration: time.Hour,
			Issuer:     "d2d-responder",
		},
	}
}

func TestNewServer_RejectsEmptyAuthToken(t *testing.T) {
	cfg := testConfig()
	cfg.AuthToken = ""
	_, err := NewServer(cfg, &fakeBackend{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestHealthz_NoAuthRequired(t *testing.T) {
	backend := &fakeBackend{connected: true}
	s, err := NewServer(testConfig(), backend, nil, nil, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatus_RequiresToken(t *testing.T) {
	s, err := NewServer(testConfig(), &fakeBackend{}, nil, nil, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginThenStatus_Succeeds(t *testing.T) {
	backend := &fakeBackend{connected: true, settings: radio.DefaultConfig(915_000_000)}
	s, err := NewServer(testConfig(), backend, nil, nil, nil)
	require.NoError(t, err)

	body, _ := json.Marshal(loginRequest{Token: "trial-secret"})
	loginReq := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	loginReq.Header.Set("Content-Type", "application/json")
	loginResp, err := s.app.Test(loginReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, loginResp.StatusCode)

	var parsed loginResponse
	require.NoError(t, json.NewDecoder(loginResp.Body).Decode(&parsed))
	require.NotEmpty(t, parsed.AccessToken)

	statusReq := httptest.NewRequest(http.MethodGet, "/status", nil)
	statusReq.Header.Set("Authorization", "Bearer "+parsed.AccessToken)
	statusResp, err := s.app.Test(statusReq)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, statusResp.StatusCode)
}

func TestLogin_RejectsWrongToken(t *testing.T) {
	s, err := NewServer(testConfig(), &fakeBackend{}, nil, nil, nil)
	require.NoError(t, err)

	body, _ := json.Marshal(loginRequest{Token: "wrong"})
	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEventToMap_RxIncludesRssiAndSnr(t *testing.T) {
	rssi := -42
	snr := float32(7.5)
	ev := radio.Event{Kind: radio.EventRx, Frame: &radio.RxFrame{Bytes: []byte("hi"), RssiDbm: &rssi, SnrDb: &snr}}
	m := eventToMap(ev)
	assert.Equal(t, -42, m["rssi_dbm"])
	assert.Equal(t, float32(7.5), m["snr_db"])
	assert.Equal(t, 2, m["bytes"])
}

func TestEventToMap_OtherCarriesTag(t *testing.T) {
	ev := radio.Event{Kind: radio.EventOther, Tag: "tx_ok"}
	m := eventToMap(ev)
	assert.Equal(t, "tx_ok", m["tag"])
}
