package core

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zrocontrol/zrocontrol/pkg/devicestore"
	"github.com/zrocontrol/zrocontrol/pkg/ecp"
	"github.com/zrocontrol/zrocontrol/pkg/logger"
	"github.com/zrocontrol/zrocontrol/pkg/models"
	"github.com/zrocontrol/zrocontrol/pkg/sessionstore"
)

// MockDeviceClient is a mock implementation of DeviceClient.
type MockDeviceClient struct {
	mock.Mock
}

func (m *MockDeviceClient) DeviceInfo(ctx context.Context) (models.DeviceIdentity, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.DeviceIdentity), args.Error(1)
}

func (m *MockDeviceClient) Apps(ctx context.Context) ([]models.AppSummary, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.AppSummary), args.Error(1)
}

func (m *MockDeviceClient) ActiveApp(ctx context.Context) (*models.ActiveApp, error) {
	args := m.Called(ctx)

	var active *models.ActiveApp
	if v := args.Get(0); v != nil {
		active = v.(*models.ActiveApp)
	}

	return active, args.Error(1)
}

func (m *MockDeviceClient) Keypress(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockDeviceClient) Keydown(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockDeviceClient) Keyup(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *MockDeviceClient) Launch(ctx context.Context, appID string) error {
	return m.Called(ctx, appID).Error(0)
}

func (m *MockDeviceClient) Icon(ctx context.Context, appID string) ([]byte, string, error) {
	args := m.Called(ctx, appID)
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

func (m *MockDeviceClient) DeviceIcon(ctx context.Context) ([]byte, string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]byte), args.String(1), args.Error(2)
}

type stubDiscoverer struct {
	devices []models.DeviceIdentity
	err     error
	window  time.Duration
}

func (s *stubDiscoverer) Discover(_ context.Context, window time.Duration) ([]models.DeviceIdentity, error) {
	s.window = window

	return s.devices, s.err
}

func newTestService(t *testing.T, client *MockDeviceClient, disc DeviceDiscoverer) *Service {
	t.Helper()

	lg := logger.NewTestLogger()

	devices, err := devicestore.New(t.TempDir(), lg)
	require.NoError(t, err)

	sessions, err := sessionstore.New(t.TempDir(), lg)
	require.NoError(t, err)

	factory := func(_ string, _ time.Duration, _ logger.Logger) (DeviceClient, error) {
		return client, nil
	}

	return NewService(devices, sessions, disc, factory, lg)
}

func TestPollActiveAppFeedsBothStores(t *testing.T) {
	client := &MockDeviceClient{}
	client.On("ActiveApp", mock.Anything).Return(&models.ActiveApp{ID: "12", Name: "Netflix"}, nil)

	svc := newTestService(t, client, &stubDiscoverer{})

	active, err := svc.PollActiveApp(context.Background(), "192.168.1.20", "browser-abc")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "12", active.ID)

	// Device record picked up the observation and the recent bump.
	rec := svc.Devices().Load("192.168.1.20")
	require.NotNil(t, rec.LastActiveApp)
	assert.Equal(t, "12", rec.LastActiveApp.ID)
	require.Len(t, rec.RecentChannels, 1)

	// The viewer is now Watching.
	doc := svc.Sessions().Load("192.168.1.20")
	user := doc.Users[sessionstore.ViewerID("192.168.1.20", "browser-abc")]
	require.NotNil(t, user)
	require.NotNil(t, user.Current)
	assert.Equal(t, "12", user.Current.ChannelID)

	client.AssertExpectations(t)
}

func TestPollActiveAppDeviceErrorLeavesStoresUntouched(t *testing.T) {
	client := &MockDeviceClient{}
	client.On("ActiveApp", mock.Anything).Return(nil, fmt.Errorf("%w: boom", ecp.ErrProtocol))

	svc := newTestService(t, client, &stubDiscoverer{})

	_, err := svc.PollActiveApp(context.Background(), "192.168.1.20", "browser-abc")
	require.ErrorIs(t, err, ecp.ErrProtocol)

	assert.Nil(t, svc.Devices().Load("192.168.1.20").LastActiveSeenTS)
	assert.Empty(t, svc.Sessions().Load("192.168.1.20").Users)
}

func TestCheckReachable(t *testing.T) {
	client := &MockDeviceClient{}
	client.On("DeviceInfo", mock.Anything).
		Return(models.DeviceIdentity{IP: "192.168.1.20", Name: "Living Room", ModelName: "Roku Ultra"}, nil)

	svc := newTestService(t, client, &stubDiscoverer{})

	rec, info, reachable, err := svc.CheckReachable(context.Background(), "192.168.1.20")
	require.NoError(t, err)
	assert.True(t, reachable)
	assert.Equal(t, "Living Room", info.Name)
	require.NotNil(t, rec.LastReachableTS)
	assert.Equal(t, "Living Room", rec.DeviceName)
	assert.Equal(t, "Roku Ultra", rec.DeviceModel)
}

func TestCheckReachableProtocolFailure(t *testing.T) {
	client := &MockDeviceClient{}
	client.On("DeviceInfo", mock.Anything).
		Return(models.DeviceIdentity{}, fmt.Errorf("%w: no answer", ecp.ErrProtocol))

	svc := newTestService(t, client, &stubDiscoverer{})

	rec, _, reachable, err := svc.CheckReachable(context.Background(), "192.168.1.20")
	require.NoError(t, err)
	assert.False(t, reachable)
	require.NotNil(t, rec.LastSeenTS)
	assert.Nil(t, rec.LastReachableTS)
}

func TestLaunchChannelBumpsRecent(t *testing.T) {
	client := &MockDeviceClient{}
	client.On("Launch", mock.Anything, "12").Return(nil)

	svc := newTestService(t, client, &stubDiscoverer{})

	require.NoError(t, svc.LaunchChannel(context.Background(), "192.168.1.20", "12", "Netflix"))

	recent := svc.Devices().Load("192.168.1.20").RecentChannels
	require.Len(t, recent, 1)
	assert.Equal(t, "Netflix", recent[0].Name)

	client.AssertExpectations(t)
}

func TestLaunchChannelFailureDoesNotBump(t *testing.T) {
	client := &MockDeviceClient{}
	client.On("Launch", mock.Anything, "12").Return(fmt.Errorf("%w: refused", ecp.ErrProtocol))

	svc := newTestService(t, client, &stubDiscoverer{})

	require.Error(t, svc.LaunchChannel(context.Background(), "192.168.1.20", "12", "Netflix"))
	assert.Empty(t, svc.Devices().Load("192.168.1.20").RecentChannels)
}

func TestDiscoverAndRecord(t *testing.T) {
	disc := &stubDiscoverer{devices: []models.DeviceIdentity{
		{IP: "192.168.1.20", Name: "Living Room", ModelName: "Roku Ultra"},
		{IP: "192.168.1.30"}, // enrichment failed upstream
	}}

	svc := newTestService(t, &MockDeviceClient{}, disc)

	result, err := svc.DiscoverAndRecord(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.True(t, result[0].Reachable)
	assert.Equal(t, "Living Room", result[0].Name)

	assert.False(t, result[1].Reachable)
	assert.Equal(t, "Roku", result[1].Name, "unnamed devices fall back to the generic label")

	// Both devices are now in the store.
	known := svc.Devices().ListKnownDevices()
	assert.Len(t, known, 2)
}

func TestClientCacheReusesClients(t *testing.T) {
	var built int

	factory := func(_ string, _ time.Duration, _ logger.Logger) (DeviceClient, error) {
		built++
		return &MockDeviceClient{}, nil
	}

	lg := logger.NewTestLogger()

	devices, err := devicestore.New(t.TempDir(), lg)
	require.NoError(t, err)
	sessions, err := sessionstore.New(t.TempDir(), lg)
	require.NoError(t, err)

	svc := NewService(devices, sessions, &stubDiscoverer{}, factory, lg)

	for i := 0; i < 5; i++ {
		_, err := svc.Client("192.168.1.20")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, built)

	// The fast class is a separate cache.
	_, err = svc.FastClient("192.168.1.20")
	require.NoError(t, err)
	assert.Equal(t, 2, built)
}
