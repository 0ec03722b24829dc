// Package portmap acquires and maintains an external port mapping on the
// local gateway so that remote players can reach a hosted match without
// manual router configuration.

package portmap

import (
	"context"
	"sync"
	"time"

	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/microcosm-game/microcosm-server/logging"
	"go.uber.org/zap"
)

const (
	// discoverTimeout bounds gateway discovery. Failure is non-fatal to
	// LAN-only play, so we keep this short.
	discoverTimeout = 10 * time.Second
	// requestTimeout bounds a single mapping request against the gateway.
	requestTimeout = 5 * time.Second
	// mappingDescription shows up in the router's port forwarding table.
	mappingDescription = "microcosm-server"
)

// Lease represents an active external-port reservation on the local gateway.
type Lease struct {
	// ExternalPort is the port remote players connect to.
	ExternalPort uint16
	// InternalPort is the host's listening port the mapping forwards to.
	InternalPort uint16
	// Protocol is "TCP" or "UDP".
	Protocol string
	// Duration is the lease duration granted by the gateway.
	Duration time.Duration
	// ExternalIP is the gateway's external address, if it reported one.
	ExternalIP string
}

// Gateway is a router that can hold port mappings. Production uses the UPnP
// IGD implementation from DiscoverGateway, tests use mocks.
type Gateway interface {
	// AddPortMapping maps externalPort on the gateway to internalPort on this
	// host for the given lease duration.
	AddPortMapping(ctx context.Context, externalPort uint16, internalPort uint16, protocol string,
		description string, leaseDuration time.Duration) error
	// DeletePortMapping removes the mapping for the given external port.
	DeletePortMapping(ctx context.Context, externalPort uint16, protocol string) error
	// ExternalIP returns the gateway's external address.
	ExternalIP(ctx context.Context) (string, error)
}

// DiscoverFunc locates the Gateway to use.
type DiscoverFunc func(ctx context.Context) (Gateway, error)

// Bootstrapper acquires a port mapping lease on startup, renews it while
// running and releases it on shutdown. All methods are safe for concurrent
// use.
type Bootstrapper struct {
	// discover locates the gateway on Acquire.
	discover DiscoverFunc
	// m locks gateway, lease and released.
	m sync.Mutex
	// gateway is set after successful discovery.
	gateway Gateway
	// lease is the currently held lease. Nil when none is held.
	lease *Lease
	// released is set once Release ran so that it stays idempotent.
	released bool
}

// NewBootstrapper creates a Bootstrapper that locates the gateway with the
// given DiscoverFunc. Pass DiscoverGateway outside of tests.
func NewBootstrapper(discover DiscoverFunc) *Bootstrapper {
	return &Bootstrapper{
		discover: discover,
	}
}

// Acquire discovers the gateway and requests an external mapping for the
// given internal port. The returned error is always of code errors.ErrMapping
// and must be treated as non-fatal: the match still starts, remote players
// may just be unable to connect.
func (b *Bootstrapper) Acquire(ctx context.Context, internalPort uint16, leaseDuration time.Duration) (Lease, error) {
	b.m.Lock()
	defer b.m.Unlock()
	if b.lease != nil {
		return *b.lease, nil
	}
	discoverCtx, cancelDiscover := context.WithTimeout(ctx, discoverTimeout)
	defer cancelDiscover()
	gateway, err := b.discover(discoverCtx)
	if err != nil {
		return Lease{}, errors.Wrap(err, "discover gateway", nil)
	}
	requestCtx, cancelRequest := context.WithTimeout(ctx, requestTimeout)
	defer cancelRequest()
	err = gateway.AddPortMapping(requestCtx, internalPort, internalPort, "TCP", mappingDescription, leaseDuration)
	if err != nil {
		return Lease{}, errors.Error{
			Code:    errors.ErrMapping,
			Kind:    errors.KindLeaseRejected,
			Err:     err,
			Message: "add port mapping",
			Details: errors.Details{"internal_port": internalPort},
		}
	}
	lease := &Lease{
		ExternalPort: internalPort,
		InternalPort: internalPort,
		Protocol:     "TCP",
		Duration:     leaseDuration,
	}
	// The external IP is informational only, so a failure here does not void
	// the lease.
	if externalIP, ipErr := gateway.ExternalIP(requestCtx); ipErr == nil {
		lease.ExternalIP = externalIP
	}
	b.gateway = gateway
	b.lease = lease
	b.released = false
	logging.PortMapLogger.Info("port mapping acquired",
		zap.Uint16("external_port", lease.ExternalPort),
		zap.String("external_ip", lease.ExternalIP),
		zap.Duration("lease_duration", lease.Duration))
	return *lease, nil
}

// Renew re-requests the held lease at half its duration until the given
// context is done, then releases it. Run this in a goroutine after a
// successful Acquire.
func (b *Bootstrapper) Renew(ctx context.Context) {
	b.m.Lock()
	if b.lease == nil {
		b.m.Unlock()
		return
	}
	interval := b.lease.Duration / 2
	b.m.Unlock()
	renewTicker := time.NewTicker(interval)
	defer renewTicker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Always try to release on the way out so that no router state
			// leaks.
			releaseCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
			b.Release(releaseCtx)
			cancel()
			return
		case <-renewTicker.C:
			if err := b.renew(ctx); err != nil {
				errors.Log(logging.PortMapLogger, errors.Wrap(err, "renew port mapping", nil))
			}
		}
	}
}

func (b *Bootstrapper) renew(ctx context.Context) error {
	b.m.Lock()
	defer b.m.Unlock()
	if b.lease == nil || b.gateway == nil {
		return nil
	}
	requestCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	err := b.gateway.AddPortMapping(requestCtx, b.lease.ExternalPort, b.lease.InternalPort,
		b.lease.Protocol, mappingDescription, b.lease.Duration)
	if err != nil {
		return errors.Error{
			Code:    errors.ErrMapping,
			Kind:    errors.KindLeaseRejected,
			Err:     err,
			Message: "re-request lease",
		}
	}
	logging.PortMapLogger.Debug("port mapping renewed",
		zap.Uint16("external_port", b.lease.ExternalPort))
	return nil
}

// Release removes the held mapping from the gateway. It is idempotent and
// never fails loudly: a router that already dropped the lease is fine.
func (b *Bootstrapper) Release(ctx context.Context) {
	b.m.Lock()
	defer b.m.Unlock()
	if b.released || b.lease == nil || b.gateway == nil {
		return
	}
	b.released = true
	err := b.gateway.DeletePortMapping(ctx, b.lease.ExternalPort, b.lease.Protocol)
	if err != nil {
		errors.Log(logging.PortMapLogger, errors.FromErr("delete port mapping", errors.ErrMapping, err,
			errors.Details{"external_port": b.lease.ExternalPort}))
	} else {
		logging.PortMapLogger.Info("port mapping released",
			zap.Uint16("external_port", b.lease.ExternalPort))
	}
	b.lease = nil
}

// Lease returns the currently held lease.
func (b *Bootstrapper) Lease() (Lease, bool) {
	b.m.Lock()
	defer b.m.Unlock()
	if b.lease == nil {
		return Lease{}, false
	}
	return *b.lease, true
}
