package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zrocontrol/zrocontrol/pkg/core"
	"github.com/zrocontrol/zrocontrol/pkg/devicestore"
	"github.com/zrocontrol/zrocontrol/pkg/ecp"
	"github.com/zrocontrol/zrocontrol/pkg/logger"
	"github.com/zrocontrol/zrocontrol/pkg/models"
	"github.com/zrocontrol/zrocontrol/pkg/sessionstore"
)

type mockDeviceClient struct {
	mock.Mock
}

func (m *mockDeviceClient) DeviceInfo(ctx context.Context) (models.DeviceIdentity, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.DeviceIdentity), args.Error(1)
}

func (m *mockDeviceClient) Apps(ctx context.Context) ([]models.AppSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.AppSummary), args.Error(1)
}

func (m *mockDeviceClient) ActiveApp(ctx context.Context) (*models.ActiveApp, error) {
	args := m.Called(ctx)

	var active *models.ActiveApp
	if v := args.Get(0); v != nil {
		active = v.(*models.ActiveApp)
	}

	return active, args.Error(1)
}

func (m *mockDeviceClient) Keypress(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockDeviceClient) Keydown(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockDeviceClient) Keyup(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockDeviceClient) Launch(ctx context.Context, appID string) error {
	return m.Called(ctx, appID).Error(0)
}

func (m *mockDeviceClient) Icon(ctx context.Context, appID string) ([]byte, string, error) {
	args := m.Called(ctx, appID)
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *mockDeviceClient) DeviceIcon(ctx context.Context) ([]byte, string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

type stubDiscoverer struct {
	devices []models.DeviceIdentity
	window  time.Duration
}

func (s *stubDiscoverer) Discover(_ context.Context, window time.Duration) ([]models.DeviceIdentity, error) {
	s.window = window

	return s.devices, nil
}

func newTestServer(t *testing.T, client *mockDeviceClient) (*Server, *core.Service) {
	t.Helper()

	lg := logger.NewTestLogger()

	devices, err := devicestore.New(t.TempDir(), lg)
	require.NoError(t, err)

	sessions, err := sessionstore.New(t.TempDir(), lg)
	require.NoError(t, err)

	factory := func(_ string, _ time.Duration, _ logger.Logger) (core.DeviceClient, error) {
		return client, nil
	}

	svc := core.NewService(devices, sessions, &stubDiscoverer{}, factory, lg)

	return NewServer(svc, lg), svc
}

func doJSON(t *testing.T, srv *Server, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	return w, body
}

func TestKnownDevicesEmpty(t *testing.T) {
	srv, _ := newTestServer(t, &mockDeviceClient{})

	w, body := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/devices", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
	assert.Empty(t, body["devices"])
}

func TestActiveAppIssuesBrowserCookie(t *testing.T) {
	client := &mockDeviceClient{}
	client.On("ActiveApp", mock.Anything).Return(&models.ActiveApp{ID: "12", Name: "Netflix"}, nil)

	srv, svc := newTestServer(t, client)

	w, body := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/active-app?ip=192.168.1.20", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])

	var cookie *http.Cookie

	for _, c := range w.Result().Cookies() {
		if c.Name == BrowserIDCookie {
			cookie = c
		}
	}

	require.NotNil(t, cookie, "first visit must set the identity cookie")
	assert.NotEmpty(t, cookie.Value)

	// The viewer keyed by that cookie is now Watching.
	user := svc.Sessions().Load("192.168.1.20").Users[sessionstore.ViewerID("192.168.1.20", cookie.Value)]
	require.NotNil(t, user)
	require.NotNil(t, user.Current)
	assert.Equal(t, "12", user.Current.ChannelID)
}

func TestActiveAppReusesCookie(t *testing.T) {
	client := &mockDeviceClient{}
	client.On("ActiveApp", mock.Anything).Return(&models.ActiveApp{ID: "12", Name: "Netflix"}, nil)

	srv, svc := newTestServer(t, client)

	req := httptest.NewRequest(http.MethodGet, "/api/active-app?ip=192.168.1.20", nil)
	req.AddCookie(&http.Cookie{Name: BrowserIDCookie, Value: "known-browser"})

	w, _ := doJSON(t, srv, req)

	require.Equal(t, http.StatusOK, w.Code)

	for _, c := range w.Result().Cookies() {
		assert.NotEqual(t, BrowserIDCookie, c.Name, "existing identity must not be reissued")
	}

	user := svc.Sessions().Load("192.168.1.20").Users[sessionstore.ViewerID("192.168.1.20", "known-browser")]
	require.NotNil(t, user)
}

func TestActiveAppMissingIP(t *testing.T) {
	srv, _ := newTestServer(t, &mockDeviceClient{})

	w, body := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/active-app", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, body["ok"])
}

func TestDeviceInfoProtocolErrorMapsToBadGateway(t *testing.T) {
	client := &mockDeviceClient{}
	client.On("DeviceInfo", mock.Anything).
		Return(models.DeviceIdentity{}, fmt.Errorf("%w: connection refused", ecp.ErrProtocol))

	srv, _ := newTestServer(t, client)

	w, body := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/device-info?ip=192.168.1.20", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, false, body["ok"])
}

func TestKeypress(t *testing.T) {
	client := &mockDeviceClient{}
	client.On("Keypress", mock.Anything, "Home").Return(nil)

	srv, _ := newTestServer(t, client)

	payload := bytes.NewBufferString(`{"ip":"192.168.1.20","key":"Home"}`)
	w, body := doJSON(t, srv, httptest.NewRequest(http.MethodPost, "/api/keypress", payload))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
	client.AssertExpectations(t)
}

func TestKeypressMissingIP(t *testing.T) {
	srv, _ := newTestServer(t, &mockDeviceClient{})

	payload := bytes.NewBufferString(`{"key":"Home"}`)
	w, _ := doJSON(t, srv, httptest.NewRequest(http.MethodPost, "/api/keypress", payload))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLaunchBumpsRecentChannels(t *testing.T) {
	client := &mockDeviceClient{}
	client.On("Launch", mock.Anything, "12").Return(nil)

	srv, _ := newTestServer(t, client)

	payload := bytes.NewBufferString(`{"ip":"192.168.1.20","app_id":"12","app_name":"Netflix"}`)
	w, _ := doJSON(t, srv, httptest.NewRequest(http.MethodPost, "/api/launch", payload))
	require.Equal(t, http.StatusOK, w.Code)

	w, body := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/recent-channels?ip=192.168.1.20", nil))
	require.Equal(t, http.StatusOK, w.Code)

	recent, ok := body["recent_channels"].([]interface{})
	require.True(t, ok)
	require.Len(t, recent, 1)

	first, ok := recent[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Netflix", first["name"])
}

func TestUserData(t *testing.T) {
	srv, _ := newTestServer(t, &mockDeviceClient{})

	w, body := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/user-data?ip=192.168.1.20", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])

	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, data["user_id"])
}

func TestUserDataRefreshSurvivesDeviceFailure(t *testing.T) {
	client := &mockDeviceClient{}
	client.On("ActiveApp", mock.Anything).Return(nil, fmt.Errorf("%w: timeout", ecp.ErrProtocol))

	srv, _ := newTestServer(t, client)

	w, body := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/user-data?ip=192.168.1.20&refresh=1", nil))

	// Refresh is best effort: the view still renders.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ok"])
}

func TestReachable(t *testing.T) {
	client := &mockDeviceClient{}
	client.On("DeviceInfo", mock.Anything).
		Return(models.DeviceIdentity{IP: "192.168.1.20", Name: "Living Room", ModelName: "Roku Ultra"}, nil)

	srv, _ := newTestServer(t, client)

	w, body := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/reachable?ip=192.168.1.20", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["reachable"])
	assert.Equal(t, "Living Room", body["name"])
	assert.NotEmpty(t, body["last_reachable_ts"])
}

func TestIconNotFoundOnDeviceError(t *testing.T) {
	client := &mockDeviceClient{}
	client.On("Icon", mock.Anything, "12").
		Return([]byte(nil), "", fmt.Errorf("%w: no icon", ecp.ErrProtocol))

	srv, _ := newTestServer(t, client)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/icon/12?ip=192.168.1.20", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeviceIconPassthrough(t *testing.T) {
	client := &mockDeviceClient{}
	client.On("DeviceIcon", mock.Anything).Return([]byte{0x89, 0x50}, "image/png", nil)

	srv, _ := newTestServer(t, client)

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/device-icon?ip=192.168.1.20", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0x89, 0x50}, w.Body.Bytes())
}

func TestDiscoverEndpoint(t *testing.T) {
	lg := logger.NewTestLogger()

	devices, err := devicestore.New(t.TempDir(), lg)
	require.NoError(t, err)
	sessions, err := sessionstore.New(t.TempDir(), lg)
	require.NoError(t, err)

	disc := &stubDiscoverer{devices: []models.DeviceIdentity{
		{IP: "192.168.1.20", Name: "Living Room", ModelName: "Roku Ultra"},
	}}

	svc := core.NewService(devices, sessions, disc, func(_ string, _ time.Duration, _ logger.Logger) (core.DeviceClient, error) {
		return &mockDeviceClient{}, nil
	}, lg)

	srv := NewServer(svc, lg)

	w, body := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/discover?timeout=0.5", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 500*time.Millisecond, disc.window)

	found, ok := body["devices"].([]interface{})
	require.True(t, ok)
	require.Len(t, found, 1)

	first, ok := found[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Living Room", first["name"])
	assert.Equal(t, true, first["reachable"])

	// The caller may also widen the window beyond the configured one.
	w, _ = doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/discover?timeout=7", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 7*time.Second, disc.window)

	// No timeout falls through to the configured window.
	w, _ = doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/discover", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Duration(0), disc.window)
}
