package lbClient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/sHedC/leakbot-exporter/leakbot-api/lbErrors"
	"github.com/sHedC/leakbot-exporter/leakbot-api/lbStructs"
)

// APIURL is the production Leakbot endpoint.
const APIURL = "https://api.leakbot.io"

// TokenCookie is the cookie name the vendor expects the session token in.
// The same token also travels as the "token" body field on every
// authenticated call.
const TokenCookie = "lctoken"

const (
	pathLogin           = "/User/Account/MyLogin/"
	pathAccountRead     = "/User/Account/MyRead/"
	pathAddressRead     = "/User/Address/MyRead/"
	pathTenantView      = "/Tenant/MyView/"
	pathDeviceList      = "/Device/MyDeviceList/"
	pathDeviceView      = "/Device/MyView/"
	pathDeviceMessages  = "/Device/Message/MyLatest/"
	pathWaterUsage      = "/Device/WaterUsage/MyReport/"
	pathSimpleEventList = "/Device/SimpleEventList/"
)

// requestTimeout bounds every call to the vendor; the original carried
// no timeout at all and relied on the transport default.
const requestTimeout = 30 * time.Second

// LeakbotApiClient owns the authenticated session against the Leakbot
// cloud API. It performs no retries itself; re-login and retry cadence
// belong to the coordinator.
type LeakbotApiClient struct {
	baseURL   string
	username  string
	password  string
	token     string
	connected bool
	client    *http.Client
	logger    *zap.SugaredLogger
}

func NewLeakbotApiClient(baseURL, username, password string, logger *zap.SugaredLogger) *LeakbotApiClient {
	return &LeakbotApiClient{
		baseURL:  baseURL,
		username: username,
		password: password,
		client:   &http.Client{Timeout: requestTimeout},
		logger:   logger,
	}
}

// IsConnected reports the last known login state. It is cleared
// pessimistically at the start of every login attempt.
func (c *LeakbotApiClient) IsConnected() bool {
	return c.connected
}

// Token returns the current session token.
func (c *LeakbotApiClient) Token() string {
	return c.token
}

// SetToken injects a previously stored session token, e.g. one restored
// from a prior run. The next call that fails with a TokenError discards
// it via re-login.
func (c *LeakbotApiClient) SetToken(token string) {
	c.token = token
	c.connected = token != ""
}

// Login authenticates against the vendor account. The API reports wrong
// credentials inside a 2xx body, so the body is inspected for an error
// envelope before the token is accepted.
func (c *LeakbotApiClient) Login(ctx context.Context) (*lbStructs.LoginResponse, error) {
	c.connected = false

	body, err := c.post(ctx, pathLogin, map[string]any{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return nil, err
	}

	var envelope lbErrors.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &lbErrors.CommunicationError{Description: "undecodable login response", Err: err}
	}
	if envelope.Present() {
		c.logger.Warnw("login rejected", "description", envelope.Description)
		return nil, &lbErrors.AuthenticationError{
			Code:        fmt.Sprint(envelope.Code),
			Description: envelope.Description,
		}
	}

	result := &lbStructs.LoginResponse{}
	if err := json.Unmarshal(body, result); err != nil {
		return nil, &lbErrors.CommunicationError{Description: "undecodable login response", Err: err}
	}

	c.token = result.Token
	c.connected = true
	c.logger.Infow("logged in", "account", result.AccountID, "tenant", result.TenantID)
	return result, nil
}

func (c *LeakbotApiClient) GetDeviceList(ctx context.Context) (*lbStructs.DeviceList, error) {
	result := &lbStructs.DeviceList{}
	if err := c.call(ctx, pathDeviceList, map[string]any{}, result); err != nil {
		return nil, err
	}
	c.logger.Infof("Get List of Devices: %d", len(result.IDs))
	return result, nil
}

func (c *LeakbotApiClient) GetAccountInfo(ctx context.Context) (*lbStructs.AccountInfo, error) {
	result := &lbStructs.AccountInfo{}
	if err := c.call(ctx, pathAccountRead, map[string]any{}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *LeakbotApiClient) GetAddressInfo(ctx context.Context) (*lbStructs.AddressInfo, error) {
	result := &lbStructs.AddressInfo{}
	if err := c.call(ctx, pathAddressRead, map[string]any{}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *LeakbotApiClient) GetTenantInfo(ctx context.Context) (*lbStructs.TenantInfo, error) {
	result := &lbStructs.TenantInfo{}
	if err := c.call(ctx, pathTenantView, map[string]any{}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *LeakbotApiClient) GetDeviceData(ctx context.Context, deviceID string) (*lbStructs.DeviceInfoView, error) {
	result := &lbStructs.DeviceInfoView{}
	if err := c.call(ctx, pathDeviceView, map[string]any{"device_id": deviceID}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *LeakbotApiClient) GetDeviceMessages(ctx context.Context, deviceID string) (*lbStructs.DeviceMessages, error) {
	result := &lbStructs.DeviceMessages{}
	if err := c.call(ctx, pathDeviceMessages, map[string]any{"device_id": deviceID}, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *LeakbotApiClient) GetDeviceWaterUsage(ctx context.Context, deviceID string, tzOffset int) (*lbStructs.WaterUsageReport, error) {
	result := &lbStructs.WaterUsageReport{}
	params := map[string]any{"device_id": deviceID, "tz_offset": tzOffset}
	if err := c.call(ctx, pathWaterUsage, params, result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetDeviceSimpleEventList fetches event records from startingDate
// (vendor timestamp format) forward, newest first.
func (c *LeakbotApiClient) GetDeviceSimpleEventList(ctx context.Context, deviceID, startingDate string) (*lbStructs.EventList, error) {
	result := &lbStructs.EventList{}
	params := map[string]any{"device_id": deviceID, "starting_date": startingDate}
	if err := c.call(ctx, pathSimpleEventList, params, result); err != nil {
		return nil, err
	}
	return result, nil
}

// call performs one authenticated POST and decodes the body into result.
// The body is inspected for the vendor error envelope first: code 32
// becomes a TokenError, anything else an APIError.
func (c *LeakbotApiClient) call(ctx context.Context, path string, params map[string]any, result any) error {
	params["token"] = c.token

	body, err := c.post(ctx, path, params)
	if err != nil {
		return err
	}

	var envelope lbErrors.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &lbErrors.CommunicationError{Description: "undecodable response body", Err: err}
	}
	if envelope.Present() {
		if envelope.TokenExpired() {
			c.logger.Infow("session token expired", "path", path)
			return &lbErrors.TokenError{Description: envelope.Description}
		}
		c.logger.Errorw("api error", "path", path, "body", string(body))
		return &lbErrors.APIError{Code: fmt.Sprint(envelope.Code), Description: envelope.Description}
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &lbErrors.CommunicationError{Description: "undecodable response body", Err: err}
	}
	return nil
}

func (c *LeakbotApiClient) post(ctx context.Context, path string, params map[string]any) ([]byte, error) {
	endpoint, err := url.JoinPath(c.baseURL, path)
	if err != nil {
		return nil, &lbErrors.CommunicationError{Description: "bad endpoint path", Err: err}
	}

	payload, err := json.Marshal(params)
	if err != nil {
		return nil, &lbErrors.CommunicationError{Description: "unencodable request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &lbErrors.CommunicationError{Description: "building request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: c.token})

	res, err := c.client.Do(req)
	if err != nil {
		return nil, &lbErrors.CommunicationError{Description: "error fetching information", Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &lbErrors.CommunicationError{Status: res.StatusCode, Description: "reading response body", Err: err}
	}
	c.logger.Debugw("post", "path", path, "status", res.StatusCode)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &lbErrors.CommunicationError{Status: res.StatusCode, Description: string(body)}
	}
	return body, nil
}
