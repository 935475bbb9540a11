package lbCoordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/sHedC/leakbot-exporter/leakbot-api/lbErrors"
	"github.com/sHedC/leakbot-exporter/leakbot-api/lbStructs"
)

// ErrAuthenticationFailed means the stored credentials were rejected.
// The scheduler must stop until the user re-enters them.
var ErrAuthenticationFailed = errors.New("authentication failed")

// ErrUpdateFailed is a transient refresh failure; the scheduler retries
// on its next tick.
var ErrUpdateFailed = errors.New("update failed")

// ApiClient is the slice of the Leakbot API client the coordinator uses.
type ApiClient interface {
	IsConnected() bool
	Token() string
	Login(ctx context.Context) (*lbStructs.LoginResponse, error)
	GetAccountInfo(ctx context.Context) (*lbStructs.AccountInfo, error)
	GetAddressInfo(ctx context.Context) (*lbStructs.AddressInfo, error)
	GetTenantInfo(ctx context.Context) (*lbStructs.TenantInfo, error)
	GetDeviceList(ctx context.Context) (*lbStructs.DeviceList, error)
	GetDeviceData(ctx context.Context, deviceID string) (*lbStructs.DeviceInfoView, error)
	GetDeviceMessages(ctx context.Context, deviceID string) (*lbStructs.DeviceMessages, error)
	GetDeviceWaterUsage(ctx context.Context, deviceID string, tzOffset int) (*lbStructs.WaterUsageReport, error)
	GetDeviceSimpleEventList(ctx context.Context, deviceID, startingDate string) (*lbStructs.EventList, error)
}

// Snapshot is the full account view at the last successful refresh. The
// coordinator is the sole writer; the published pointer is swapped only
// after a cycle fully succeeds.
type Snapshot struct {
	Account lbStructs.AccountInfo
	Address lbStructs.AddressInfo
	Tenant  lbStructs.TenantInfo
	Devices map[string]*Device
}

// Device is one Leakbot unit. Devices are created when first listed and
// never removed for the lifetime of the coordinator.
type Device struct {
	ID         string
	Metadata   lbStructs.DeviceListEntry
	Info       lbStructs.DeviceInfoView
	LastUpdate lbStructs.MessageRecord
	WaterUsage lbStructs.WaterUsageReport
	Events     []lbStructs.Event

	// EventStartDate is how far back event history has been back-filled;
	// EventEndDate is the anchor of the most recent event fetch.
	EventStartDate time.Time
	EventEndDate   time.Time
}

func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		Account: s.Account,
		Address: s.Address,
		Tenant:  s.Tenant,
		Devices: make(map[string]*Device, len(s.Devices)),
	}
	for id, dev := range s.Devices {
		copied := *dev
		next.Devices[id] = &copied
	}
	return next
}

// Coordinator owns the session and the refresh cycle. Refreshes are
// single flight: a second caller blocks until the running cycle ends.
type Coordinator struct {
	client   ApiClient
	registry RegistryStore
	logger   *zap.SugaredLogger

	refreshMu sync.Mutex

	snapMu   sync.RWMutex
	snapshot *Snapshot

	oldMu       sync.Mutex
	oldEntities map[string][]string

	now func() time.Time
}

// NewCoordinator builds a coordinator and inventories the previously
// registered presentation entities so stale ones can be pruned once the
// current schema has claimed its identifiers.
func NewCoordinator(client ApiClient, registry RegistryStore, logger *zap.SugaredLogger) *Coordinator {
	c := &Coordinator{
		client:      client,
		registry:    registry,
		logger:      logger,
		oldEntities: make(map[string][]string),
		now:         time.Now,
	}
	if registry != nil {
		existing, err := registry.List()
		if err != nil {
			logger.Errorw("could not list registered entities", "error", err)
		} else {
			for domain, ids := range existing {
				c.oldEntities[domain] = slices.Clone(ids)
			}
		}
	}
	return c
}

// Snapshot returns the last successfully refreshed view, nil before the
// first bootstrap. Read-only for callers.
func (c *Coordinator) Snapshot() *Snapshot {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.snapshot
}

// Refresh runs one full update cycle and returns the resulting snapshot.
// An expired session token is recovered with exactly one re-login; wrong
// credentials surface as ErrAuthenticationFailed, everything else as
// ErrUpdateFailed with the prior snapshot left untouched.
func (c *Coordinator) Refresh(ctx context.Context) (*Snapshot, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if !c.client.IsConnected() {
		if err := c.login(ctx); err != nil {
			return nil, err
		}
	}

	err := c.runCycle(ctx)
	var tokenErr *lbErrors.TokenError
	if errors.As(err, &tokenErr) {
		c.logger.Infow("session expired, logging in again")
		if lerr := c.login(ctx); lerr != nil {
			return nil, lerr
		}
		err = c.runCycle(ctx)
	}
	if err != nil {
		return nil, classify(err)
	}
	return c.Snapshot(), nil
}

func (c *Coordinator) login(ctx context.Context) error {
	if _, err := c.client.Login(ctx); err != nil {
		var authErr *lbErrors.AuthenticationError
		if errors.As(err, &authErr) {
			return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
		}
		return fmt.Errorf("%w: %v", ErrUpdateFailed, err)
	}
	return nil
}

// runCycle performs one fetch pass against a working copy of the
// snapshot and publishes it only when every fetch succeeded.
func (c *Coordinator) runCycle(ctx context.Context) error {
	// Doubles as the cheap session validity probe.
	account, err := c.client.GetAccountInfo(ctx)
	if err != nil {
		return err
	}

	prev := c.Snapshot()
	var next *Snapshot
	if prev == nil {
		next, err = c.bootstrap(ctx, account)
		if err != nil {
			return err
		}
	} else {
		next = prev.clone()
		next.Account = *account
	}

	for _, id := range sortedDeviceIDs(next) {
		if err := c.updateDevice(ctx, next.Devices[id]); err != nil {
			return fmt.Errorf("device %s: %w", id, err)
		}
	}

	c.snapMu.Lock()
	c.snapshot = next
	c.snapMu.Unlock()
	return nil
}

// bootstrap fetches the account-level data only needed on the first
// successful cycle and creates one Device entry per listed id.
func (c *Coordinator) bootstrap(ctx context.Context, account *lbStructs.AccountInfo) (*Snapshot, error) {
	address, err := c.client.GetAddressInfo(ctx)
	if err != nil {
		return nil, err
	}
	tenant, err := c.client.GetTenantInfo(ctx)
	if err != nil {
		return nil, err
	}
	list, err := c.client.GetDeviceList(ctx)
	if err != nil {
		return nil, err
	}

	next := &Snapshot{
		Account: *account,
		Address: *address,
		Tenant:  *tenant,
		Devices: make(map[string]*Device, len(list.IDs)),
	}
	for _, entry := range list.IDs {
		next.Devices[entry.ID] = &Device{ID: entry.ID, Metadata: entry}
	}
	c.logger.Infof("bootstrap complete, discovered %d devices", len(next.Devices))
	return next, nil
}

func (c *Coordinator) updateDevice(ctx context.Context, dev *Device) error {
	info, err := c.client.GetDeviceData(ctx, dev.ID)
	if err != nil {
		return err
	}
	dev.Info = *info

	messages, err := c.client.GetDeviceMessages(ctx, dev.ID)
	if err != nil {
		return err
	}
	if len(messages.MessageRecords) > 0 {
		dev.LastUpdate = messages.MessageRecords[0]
	}

	_, offsetSecs := c.now().Zone()
	usage, err := c.client.GetDeviceWaterUsage(ctx, dev.ID, offsetSecs/60)
	if err != nil {
		return err
	}
	dev.WaterUsage = *usage

	return c.refreshDeviceEvents(ctx, dev)
}

func sortedDeviceIDs(snap *Snapshot) []string {
	ids := make([]string, 0, len(snap.Devices))
	for id := range snap.Devices {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func classify(err error) error {
	if errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrUpdateFailed) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUpdateFailed, err)
}
