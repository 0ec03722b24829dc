package portmap

import (
	"context"
	"net"
	"net/url"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"
	"github.com/microcosm-game/microcosm-server/errors"
	"golang.org/x/sync/errgroup"
)

// wanConnection is the method set shared by the goupnp WAN*Connection client
// types we care about.
type wanConnection interface {
	AddPortMappingCtx(ctx context.Context, remoteHost string, externalPort uint16, protocol string,
		internalPort uint16, internalClient string, enabled bool, description string, leaseDuration uint32) error
	DeletePortMappingCtx(ctx context.Context, remoteHost string, externalPort uint16, protocol string) error
	GetExternalIPAddressCtx(ctx context.Context) (string, error)
}

// igdGateway adapts a discovered UPnP internet gateway device to Gateway.
type igdGateway struct {
	connection wanConnection
	// location is the root device URL, used to determine which local address
	// faces the gateway.
	location *url.URL
}

// DiscoverGateway locates a UPnP-capable internet gateway on the local
// network. The three relevant service types are probed concurrently and the
// first responding one wins.
func DiscoverGateway(ctx context.Context) (Gateway, error) {
	found := make(chan *igdGateway, 3)
	eg, discoverCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		clients, _, err := internetgateway2.NewWANIPConnection2ClientsCtx(discoverCtx)
		if err == nil && len(clients) > 0 {
			found <- &igdGateway{connection: clients[0], location: clients[0].Location}
		}
		return nil
	})
	eg.Go(func() error {
		clients, _, err := internetgateway2.NewWANIPConnection1ClientsCtx(discoverCtx)
		if err == nil && len(clients) > 0 {
			found <- &igdGateway{connection: clients[0], location: clients[0].Location}
		}
		return nil
	})
	eg.Go(func() error {
		clients, _, err := internetgateway2.NewWANPPPConnection1ClientsCtx(discoverCtx)
		if err == nil && len(clients) > 0 {
			found <- &igdGateway{connection: clients[0], location: clients[0].Location}
		}
		return nil
	})
	_ = eg.Wait()
	select {
	case gateway := <-found:
		return gateway, nil
	default:
		return nil, errors.Error{
			Code:    errors.ErrMapping,
			Kind:    errors.KindGatewayNotFound,
			Message: "no upnp gateway responded to discovery",
		}
	}
}

func (g *igdGateway) AddPortMapping(ctx context.Context, externalPort uint16, internalPort uint16,
	protocol string, description string, leaseDuration time.Duration) error {
	internalClient, err := g.localAddressFacingGateway()
	if err != nil {
		return errors.Wrap(err, "determine local address facing gateway", nil)
	}
	return g.connection.AddPortMappingCtx(ctx, "", externalPort, protocol, internalPort,
		internalClient, true, description, uint32(leaseDuration/time.Second))
}

func (g *igdGateway) DeletePortMapping(ctx context.Context, externalPort uint16, protocol string) error {
	return g.connection.DeletePortMappingCtx(ctx, "", externalPort, protocol)
}

func (g *igdGateway) ExternalIP(ctx context.Context) (string, error) {
	return g.connection.GetExternalIPAddressCtx(ctx)
}

// localAddressFacingGateway determines the local IP the gateway forwards to
// by opening a UDP socket towards the gateway's root device URL.
func (g *igdGateway) localAddressFacingGateway() (string, error) {
	conn, err := net.Dial("udp", g.location.Host)
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()
	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", errors.NewInternalError("unexpected local address type", nil)
	}
	return localAddr.IP.String(), nil
}
