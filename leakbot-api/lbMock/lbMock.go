// Package lbMock provides an httptest stand-in for the Leakbot cloud
// API, for tests of the client and the coordinator.
package lbMock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/sHedC/leakbot-exporter/leakbot-api/lbErrors"
	"github.com/sHedC/leakbot-exporter/leakbot-api/lbStructs"
)

const (
	ValidUsername = "u@example.com"
	ValidPassword = "pw"
	DeviceID      = "123456"
)

// MockLeakbotAPI mimics the vendor contract: logical errors inside 2xx
// bodies, the session token checked from both the body field and the
// lctoken cookie, and a numeric code 32 on token expiry.
type MockLeakbotAPI struct {
	Server *httptest.Server

	mu         sync.Mutex
	validToken string
	loginCount int

	// ForceStatus makes a path answer with a bare HTTP status.
	ForceStatus map[string]int
	// ForceBody makes a path answer with a fixed raw body.
	ForceBody map[string]string

	Events []lbStructs.Event
}

func NewMockLeakbotAPI() *MockLeakbotAPI {
	now := time.Now().UTC()
	m := &MockLeakbotAPI{
		ForceStatus: make(map[string]int),
		ForceBody:   make(map[string]string),
		Events: []lbStructs.Event{
			{
				DerivedEventID:      "9001",
				DerivedEventCode:    "V2_LB_REGISTERED",
				DerivedEventCreated: lbStructs.FormatTimestamp(now.Add(-100 * 24 * time.Hour)),
				DerivedEventClosed:  lbStructs.NullTimestamp,
			},
			{
				DerivedEventID:      "9002",
				DerivedEventCode:    "V2_LB_HIGHUSE",
				DerivedEventCreated: lbStructs.FormatTimestamp(now.Add(-10 * 24 * time.Hour)),
				DerivedEventClosed:  lbStructs.FormatTimestamp(now.Add(-10*24*time.Hour + 2*time.Hour)),
			},
			{
				DerivedEventID:      "9003",
				DerivedEventCode:    "V2_LB_LOWFLOW",
				DerivedEventCreated: lbStructs.FormatTimestamp(now.Add(-24 * time.Hour)),
				DerivedEventClosed:  lbStructs.NullTimestamp,
			},
		},
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *MockLeakbotAPI) URL() string {
	return m.Server.URL
}

func (m *MockLeakbotAPI) Close() {
	m.Server.Close()
}

// ValidToken returns the token the server currently accepts.
func (m *MockLeakbotAPI) ValidToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validToken
}

// InvalidateToken expires the current session server side, as the
// vendor does after some unspecified time.
func (m *MockLeakbotAPI) InvalidateToken() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validToken = ""
}

// LoginCount reports how many login attempts the server has seen.
func (m *MockLeakbotAPI) LoginCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loginCount
}

func (m *MockLeakbotAPI) handle(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if status, ok := m.ForceStatus[r.URL.Path]; ok {
		w.WriteHeader(status)
		return
	}
	if body, ok := m.ForceBody[r.URL.Path]; ok {
		fmt.Fprint(w, body)
		return
	}

	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/User/Account/MyLogin/" {
		m.loginCount++
		if params["username"] == ValidUsername && params["password"] == ValidPassword {
			m.validToken = fmt.Sprintf("T%d", m.loginCount)
			fmt.Fprintf(w, `{"token": %q, "account_id": "A1", "tenant_id": "X", "email": %q}`, m.validToken, ValidUsername)
		} else {
			fmt.Fprint(w, `{"error": "InvalidUser", "description": "Username or Password incorrect"}`)
		}
		return
	}

	// Every other call must carry the current token in the body and in
	// the lctoken cookie.
	cookie, err := r.Cookie("lctoken")
	if m.validToken == "" || params["token"] != m.validToken || err != nil || cookie.Value != m.validToken {
		fmt.Fprintf(w, `{"error": %d, "description": "lctoken expired"}`, lbErrors.TokenExpiredCode)
		return
	}

	now := time.Now().UTC()
	switch r.URL.Path {
	case "/User/Account/MyRead/":
		fmt.Fprint(w, `{"account_id": "A1", "email": "u@example.com", "first_name": "Val", "last_name": "User", "created": "2023-01-15 09:30:00"}`)
	case "/User/Address/MyRead/":
		fmt.Fprint(w, `{"address_id": "AD1", "house_number": "12", "street": "Waterworks Lane", "town": "Leeds", "postcode": "LS1 1AA", "country": "GB"}`)
	case "/Tenant/MyView/":
		fmt.Fprint(w, `{"tenant_id": "X", "tenant_name": "Leakbot"}`)
	case "/Device/MyDeviceList/":
		fmt.Fprintf(w, `{"IDs": [{"id": %q, "device_type": "LB1", "serial_no": "LB0012345"}]}`, DeviceID)
	case "/Device/MyView/":
		fmt.Fprintf(w, `{"id": %q, "device_status": "active", "device_type": "LB1", "serial_no": "LB0012345", "address_id": "AD1", "tenant_id": "X", "info": {"battery_sm": "high", "signal_sm": "good", "last_heard_from": %q, "leak_count_summary": {"leak_free_days": "42", "leakbots_triggered": "1"}}}`,
			DeviceID, lbStructs.FormatTimestamp(now.Add(-time.Hour)))
	case "/Device/Message/MyLatest/":
		fmt.Fprintf(w, `{"total_rows": "1", "message_records": [{"msg_id": "M1", "msg_type": "heartbeat", "msg_received": %q, "battery_voltage": "3.1"}]}`,
			lbStructs.FormatTimestamp(now.Add(-time.Hour)))
	case "/Device/WaterUsage/MyReport/":
		fmt.Fprintf(w, `{"total_rows": "2", "usage_records": [{"period_start": %q, "usage_high_hrs": "101.5", "usage_low_hrs": "3.2"}, {"period_start": %q, "usage_high_hrs": "87.0", "usage_low_hrs": "1.9"}]}`,
			lbStructs.FormatTimestamp(now.Add(-48*time.Hour)), lbStructs.FormatTimestamp(now.Add(-24*time.Hour)))
	case "/Device/SimpleEventList/":
		starting, _ := params["starting_date"].(string)
		var matched []lbStructs.Event
		for _, ev := range m.Events {
			if starting == "" || ev.DerivedEventCreated >= starting {
				matched = append(matched, ev)
			}
		}
		payload, _ := json.Marshal(lbStructs.EventList{
			TotalRows: fmt.Sprint(len(matched)),
			Events:    matched,
		})
		w.Write(payload)
	default:
		fmt.Fprint(w, `{"error": "NotFound", "description": "unknown path"}`)
	}
}
