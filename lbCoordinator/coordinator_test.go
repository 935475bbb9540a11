package lbCoordinator

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sHedC/leakbot-exporter/leakbot-api/lbClient"
	"github.com/sHedC/leakbot-exporter/leakbot-api/lbMock"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *lbClient.LeakbotApiClient, *lbMock.MockLeakbotAPI) {
	t.Helper()
	mock := lbMock.NewMockLeakbotAPI()
	t.Cleanup(mock.Close)
	client := lbClient.NewLeakbotApiClient(mock.URL(), lbMock.ValidUsername, lbMock.ValidPassword, zap.NewNop().Sugar())
	coordinator := NewCoordinator(client, nil, zap.NewNop().Sugar())
	return coordinator, client, mock
}

func TestRefreshBootstrap(t *testing.T) {
	coordinator, client, _ := newTestCoordinator(t)

	snap, err := coordinator.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, client.IsConnected())
	assert.Equal(t, "T1", client.Token())

	require.Len(t, snap.Devices, 1)
	dev, ok := snap.Devices[lbMock.DeviceID]
	require.True(t, ok)

	assert.Equal(t, "active", dev.Info.DeviceStatus)
	assert.Equal(t, "M1", dev.LastUpdate.MsgID)
	assert.Len(t, dev.WaterUsage.UsageRecords, 2)
	assert.Len(t, dev.Events, 3)
	assert.False(t, dev.EventStartDate.IsZero())
	assert.False(t, dev.EventEndDate.IsZero())

	assert.Equal(t, "A1", snap.Account.AccountID)
	assert.Equal(t, "AD1", snap.Address.AddressID)
	assert.Equal(t, "X", snap.Tenant.TenantID)
	assert.Same(t, snap, coordinator.Snapshot())
}

func TestRefreshTokenRecovery(t *testing.T) {
	coordinator, client, mock := newTestCoordinator(t)

	_, err := coordinator.Refresh(context.Background())
	require.NoError(t, err)
	staleToken := client.Token()

	// Vendor expires the session between ticks.
	mock.InvalidateToken()

	snap, err := coordinator.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, staleToken, client.Token())
	assert.Equal(t, 2, mock.LoginCount())
	assert.Contains(t, snap.Devices, lbMock.DeviceID)
}

func TestRefreshAuthenticationFailed(t *testing.T) {
	mock := lbMock.NewMockLeakbotAPI()
	t.Cleanup(mock.Close)
	client := lbClient.NewLeakbotApiClient(mock.URL(), "wrong", "wrong", zap.NewNop().Sugar())
	coordinator := NewCoordinator(client, nil, zap.NewNop().Sugar())

	_, err := coordinator.Refresh(context.Background())
	require.ErrorIs(t, err, ErrAuthenticationFailed)
	assert.Nil(t, coordinator.Snapshot())
	assert.False(t, client.IsConnected())
}

func TestRefreshFailureKeepsPriorSnapshot(t *testing.T) {
	coordinator, _, mock := newTestCoordinator(t)

	first, err := coordinator.Refresh(context.Background())
	require.NoError(t, err)

	mock.ForceStatus["/Device/MyView/"] = http.StatusBadGateway
	_, err = coordinator.Refresh(context.Background())
	require.ErrorIs(t, err, ErrUpdateFailed)

	// The failed cycle must not publish anything.
	assert.Same(t, first, coordinator.Snapshot())

	delete(mock.ForceStatus, "/Device/MyView/")
	second, err := coordinator.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Contains(t, second.Devices, lbMock.DeviceID)
}

func TestRefreshIsIdempotentOnEvents(t *testing.T) {
	coordinator, _, _ := newTestCoordinator(t)

	first, err := coordinator.Refresh(context.Background())
	require.NoError(t, err)
	count := len(first.Devices[lbMock.DeviceID].Events)

	second, err := coordinator.Refresh(context.Background())
	require.NoError(t, err)
	assert.Len(t, second.Devices[lbMock.DeviceID].Events, count)
}
