package lbStructs

import (
	"strconv"
	"time"
)

// TimestampLayout is the format the Leakbot API uses for every timestamp
// field, always in UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// NullTimestamp is the sentinel the API sends for a timestamp it has not
// recorded yet, e.g. the close time of a still-open event.
const NullTimestamp = "null"

type LoginResponse struct {
	Token     string `json:"token"`
	AccountID string `json:"account_id"`
	TenantID  string `json:"tenant_id"`
	Email     string `json:"email"`
}

type AccountInfo struct {
	AccountID string `json:"account_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Created   string `json:"created"`
}

type AddressInfo struct {
	AddressID   string `json:"address_id"`
	HouseNumber string `json:"house_number"`
	Street      string `json:"street"`
	Town        string `json:"town"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
}

type TenantInfo struct {
	TenantID   string `json:"tenant_id"`
	TenantName string `json:"tenant_name"`
}

// DeviceList is the response of /Device/MyDeviceList/. The vendor wraps
// the ids in an "IDs" array.
type DeviceList struct {
	IDs []DeviceListEntry `json:"IDs"`
}

type DeviceListEntry struct {
	ID         string `json:"id"`
	DeviceType string `json:"device_type"`
	SerialNo   string `json:"serial_no"`
}

// DeviceInfoView is the detailed device view from /Device/MyView/.
type DeviceInfoView struct {
	ID           string       `json:"id"`
	DeviceStatus string       `json:"device_status"`
	DeviceType   string       `json:"device_type"`
	SerialNo     string       `json:"serial_no"`
	AddressID    string       `json:"address_id"`
	TenantID     string       `json:"tenant_id"`
	Info         DeviceDetail `json:"info"`
}

type DeviceDetail struct {
	BatterySM        string           `json:"battery_sm"`
	SignalSM         string           `json:"signal_sm"`
	LastHeardFrom    string           `json:"last_heard_from"`
	LeakCountSummary LeakCountSummary `json:"leak_count_summary"`
}

type LeakCountSummary struct {
	LeakFreeDays      string `json:"leak_free_days"`
	LeakbotsTriggered string `json:"leakbots_triggered"`
}

// DeviceMessages is the response of /Device/Message/MyLatest/. The first
// record is the most recent message the device sent home.
type DeviceMessages struct {
	TotalRows      string          `json:"total_rows"`
	MessageRecords []MessageRecord `json:"message_records"`
}

type MessageRecord struct {
	MsgID          string `json:"msg_id"`
	MsgType        string `json:"msg_type"`
	MsgReceived    string `json:"msg_received"`
	BatteryVoltage string `json:"battery_voltage"`
}

// WaterUsageReport is the response of /Device/WaterUsage/MyReport/,
// bucketed by day relative to the requested timezone offset.
type WaterUsageReport struct {
	TotalRows    string             `json:"total_rows"`
	UsageRecords []WaterUsageRecord `json:"usage_records"`
}

type WaterUsageRecord struct {
	PeriodStart string `json:"period_start"`
	UsageHigh   string `json:"usage_high_hrs"`
	UsageLow    string `json:"usage_low_hrs"`
}

// EventList is the response of /Device/SimpleEventList/ for one device,
// covering events created on or after the requested starting date.
type EventList struct {
	TotalRows string  `json:"total_rows"`
	Events    []Event `json:"events"`
}

// Event is a single remote-issued event record. DerivedEventID is unique
// per event; DerivedEventClosed stays "null" while the event is open and
// may be filled in by the vendor on a later fetch of the same record.
type Event struct {
	DerivedEventID      string `json:"derived_event_id"`
	DerivedEventCode    string `json:"derived_event_code"`
	DerivedEventCreated string `json:"derived_event_created"`
	DerivedEventClosed  string `json:"derived_event_closed"`
}

// Created parses the event creation timestamp.
func (e Event) Created() (time.Time, error) {
	return ParseTimestamp(e.DerivedEventCreated)
}

// Closed parses the event close timestamp. ok is false while the event
// is still open.
func (e Event) Closed() (t time.Time, ok bool) {
	if e.DerivedEventClosed == "" || e.DerivedEventClosed == NullTimestamp {
		return time.Time{}, false
	}
	t, err := ParseTimestamp(e.DerivedEventClosed)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ParseTimestamp parses a vendor timestamp string as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, s, time.UTC)
}

// FormatTimestamp renders t in the vendor timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Number converts the string-typed numerics the vendor sends into a
// float64, returning 0 for anything unparsable.
func Number(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
