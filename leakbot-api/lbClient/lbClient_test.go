package lbClient

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sHedC/leakbot-exporter/leakbot-api/lbErrors"
	"github.com/sHedC/leakbot-exporter/leakbot-api/lbMock"
)

func newTestClient(t *testing.T) (*LeakbotApiClient, *lbMock.MockLeakbotAPI) {
	t.Helper()
	mock := lbMock.NewMockLeakbotAPI()
	t.Cleanup(mock.Close)
	client := NewLeakbotApiClient(mock.URL(), lbMock.ValidUsername, lbMock.ValidPassword, zap.NewNop().Sugar())
	return client, mock
}

func TestLogin(t *testing.T) {
	client, _ := newTestClient(t)

	result, err := client.Login(context.Background())
	require.NoError(t, err)
	assert.True(t, client.IsConnected())
	assert.Equal(t, "T1", client.Token())
	assert.Equal(t, "T1", result.Token)
	assert.Equal(t, "X", result.TenantID)
}

func TestLoginFail(t *testing.T) {
	mock := lbMock.NewMockLeakbotAPI()
	t.Cleanup(mock.Close)
	client := NewLeakbotApiClient(mock.URL(), "none", "none", zap.NewNop().Sugar())

	_, err := client.Login(context.Background())
	var authErr *lbErrors.AuthenticationError
	require.ErrorAs(t, err, &authErr)
	assert.False(t, client.IsConnected())
	assert.Empty(t, client.Token())
}

func TestLoginCommunicationError(t *testing.T) {
	client, mock := newTestClient(t)
	mock.ForceStatus["/User/Account/MyLogin/"] = http.StatusInternalServerError

	_, err := client.Login(context.Background())
	var commErr *lbErrors.CommunicationError
	require.ErrorAs(t, err, &commErr)
	assert.Equal(t, http.StatusInternalServerError, commErr.Status)
	assert.False(t, client.IsConnected())
}

func TestTokenError(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Login(context.Background())
	require.NoError(t, err)

	client.SetToken("INVALID")
	_, err = client.GetDeviceList(context.Background())
	var tokenErr *lbErrors.TokenError
	require.ErrorAs(t, err, &tokenErr)
}

func TestDeviceList(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Login(context.Background())
	require.NoError(t, err)

	list, err := client.GetDeviceList(context.Background())
	require.NoError(t, err)
	require.Len(t, list.IDs, 1)
	assert.Equal(t, lbMock.DeviceID, list.IDs[0].ID)
	assert.Equal(t, "LB1", list.IDs[0].DeviceType)
}

func TestAccountReads(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Login(context.Background())
	require.NoError(t, err)

	account, err := client.GetAccountInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "A1", account.AccountID)

	address, err := client.GetAddressInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AD1", address.AddressID)

	tenant, err := client.GetTenantInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "X", tenant.TenantID)
}

func TestDeviceReads(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.Login(context.Background())
	require.NoError(t, err)

	info, err := client.GetDeviceData(context.Background(), lbMock.DeviceID)
	require.NoError(t, err)
	assert.Equal(t, "active", info.DeviceStatus)
	assert.Equal(t, "42", info.Info.LeakCountSummary.LeakFreeDays)

	messages, err := client.GetDeviceMessages(context.Background(), lbMock.DeviceID)
	require.NoError(t, err)
	require.NotEmpty(t, messages.MessageRecords)
	assert.Equal(t, "heartbeat", messages.MessageRecords[0].MsgType)

	usage, err := client.GetDeviceWaterUsage(context.Background(), lbMock.DeviceID, 0)
	require.NoError(t, err)
	assert.Len(t, usage.UsageRecords, 2)

	events, err := client.GetDeviceSimpleEventList(context.Background(), lbMock.DeviceID, "2020-01-01 00:00:00")
	require.NoError(t, err)
	assert.Len(t, events.Events, 3)
}

func TestApiError(t *testing.T) {
	client, mock := newTestClient(t)
	mock.ForceBody["/Device/MyDeviceList/"] = `{"error": "SystemDown", "description": "try later"}`

	_, err := client.Login(context.Background())
	require.NoError(t, err)

	_, err = client.GetDeviceList(context.Background())
	var apiErr *lbErrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "SystemDown", apiErr.Code)
}

func TestNonJSONBody(t *testing.T) {
	client, mock := newTestClient(t)
	mock.ForceBody["/Device/MyDeviceList/"] = `<html>gateway timeout</html>`

	_, err := client.Login(context.Background())
	require.NoError(t, err)

	_, err = client.GetDeviceList(context.Background())
	var commErr *lbErrors.CommunicationError
	require.ErrorAs(t, err, &commErr)
}
