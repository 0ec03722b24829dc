package portmap

import (
	"context"
	"sync"
	"testing"
	"time"

	nativeerrors "errors"

	"github.com/microcosm-game/microcosm-server/errors"
	"github.com/stretchr/testify/suite"
)

// mockGateway records mapping requests.
type mockGateway struct {
	m            sync.Mutex
	mappings     map[uint16]uint16
	addCalls     int
	deleteCalls  int
	failAdd      bool
	failDelete   bool
	externalIP   string
	failExternal bool
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		mappings:   make(map[uint16]uint16),
		externalIP: "203.0.113.7",
	}
}

func (g *mockGateway) AddPortMapping(_ context.Context, externalPort uint16, internalPort uint16,
	_ string, _ string, _ time.Duration) error {
	g.m.Lock()
	defer g.m.Unlock()
	g.addCalls++
	if g.failAdd {
		return nativeerrors.New("mapping refused")
	}
	g.mappings[externalPort] = internalPort
	return nil
}

func (g *mockGateway) DeletePortMapping(_ context.Context, externalPort uint16, _ string) error {
	g.m.Lock()
	defer g.m.Unlock()
	g.deleteCalls++
	if g.failDelete {
		return nativeerrors.New("delete refused")
	}
	delete(g.mappings, externalPort)
	return nil
}

func (g *mockGateway) ExternalIP(_ context.Context) (string, error) {
	g.m.Lock()
	defer g.m.Unlock()
	if g.failExternal {
		return "", nativeerrors.New("no external ip")
	}
	return g.externalIP, nil
}

func discoverMock(gateway *mockGateway) DiscoverFunc {
	return func(_ context.Context) (Gateway, error) {
		return gateway, nil
	}
}

func discoverNothing(_ context.Context) (Gateway, error) {
	return nil, errors.Error{
		Code:    errors.ErrMapping,
		Kind:    errors.KindGatewayNotFound,
		Message: "no upnp gateway responded to discovery",
	}
}

type bootstrapperTestSuite struct {
	suite.Suite
	gateway      *mockGateway
	bootstrapper *Bootstrapper
}

func (suite *bootstrapperTestSuite) SetupTest() {
	suite.gateway = newMockGateway()
	suite.bootstrapper = NewBootstrapper(discoverMock(suite.gateway))
}

func (suite *bootstrapperTestSuite) TestAcquire() {
	lease, err := suite.bootstrapper.Acquire(context.Background(), 9999, time.Hour)
	suite.Require().NoError(err, "acquire should not fail")
	suite.Assert().Equal(uint16(9999), lease.ExternalPort, "external port should match")
	suite.Assert().Equal(uint16(9999), lease.InternalPort, "internal port should match")
	suite.Assert().Equal("TCP", lease.Protocol, "protocol should be tcp")
	suite.Assert().Equal("203.0.113.7", lease.ExternalIP, "external ip should match")
	suite.Assert().Equal(uint16(9999), suite.gateway.mappings[9999], "mapping should exist on gateway")
}

func (suite *bootstrapperTestSuite) TestAcquireIsIdempotent() {
	_, err := suite.bootstrapper.Acquire(context.Background(), 9999, time.Hour)
	suite.Require().NoError(err, "first acquire should not fail")
	_, err = suite.bootstrapper.Acquire(context.Background(), 9999, time.Hour)
	suite.Require().NoError(err, "second acquire should not fail")
	suite.Assert().Equal(1, suite.gateway.addCalls, "should not request mapping twice")
}

func (suite *bootstrapperTestSuite) TestAcquireGatewayRefuses() {
	suite.gateway.failAdd = true
	_, err := suite.bootstrapper.Acquire(context.Background(), 9999, time.Hour)
	suite.Require().Error(err, "acquire should fail")
	suite.Assert().True(errors.Is(err, errors.ErrMapping), "error should be mapping error")
	suite.Assert().Equal(errors.KindLeaseRejected, errors.KindOf(err), "kind should be lease-rejected")
}

func (suite *bootstrapperTestSuite) TestAcquireNoGateway() {
	bootstrapper := NewBootstrapper(discoverNothing)
	_, err := bootstrapper.Acquire(context.Background(), 9999, time.Hour)
	suite.Require().Error(err, "acquire should fail")
	suite.Assert().True(errors.Is(err, errors.ErrMapping), "error should be mapping error")
	suite.Assert().Equal(errors.KindGatewayNotFound, errors.KindOf(err), "kind should be gateway-not-found")
}

func (suite *bootstrapperTestSuite) TestAcquireWithoutExternalIP() {
	suite.gateway.failExternal = true
	lease, err := suite.bootstrapper.Acquire(context.Background(), 9999, time.Hour)
	suite.Require().NoError(err, "acquire should not fail without external ip")
	suite.Assert().Empty(lease.ExternalIP, "external ip should be empty")
}

func (suite *bootstrapperTestSuite) TestRelease() {
	_, err := suite.bootstrapper.Acquire(context.Background(), 9999, time.Hour)
	suite.Require().NoError(err, "acquire should not fail")
	suite.bootstrapper.Release(context.Background())
	suite.Assert().Empty(suite.gateway.mappings, "mapping should be removed")
	_, held := suite.bootstrapper.Lease()
	suite.Assert().False(held, "no lease should be held anymore")
}

func (suite *bootstrapperTestSuite) TestReleaseIsIdempotent() {
	_, err := suite.bootstrapper.Acquire(context.Background(), 9999, time.Hour)
	suite.Require().NoError(err, "acquire should not fail")
	suite.bootstrapper.Release(context.Background())
	suite.bootstrapper.Release(context.Background())
	suite.Assert().Equal(1, suite.gateway.deleteCalls, "should only delete once")
}

func (suite *bootstrapperTestSuite) TestReleaseWithoutLease() {
	suite.bootstrapper.Release(context.Background())
	suite.Assert().Zero(suite.gateway.deleteCalls, "should not delete without lease")
}

func (suite *bootstrapperTestSuite) TestRenewReleasesOnContextDone() {
	_, err := suite.bootstrapper.Acquire(context.Background(), 9999, 500*time.Millisecond)
	suite.Require().NoError(err, "acquire should not fail")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		suite.bootstrapper.Renew(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		suite.Fail("timeout while waiting for renew to stop")
	}
	suite.Assert().Empty(suite.gateway.mappings, "mapping should be released on shutdown")
}

func TestBootstrapper(t *testing.T) {
	suite.Run(t, new(bootstrapperTestSuite))
}
