package lanradio

import (
	"context"
	"net"

	"github.com/grandcat/zeroconf"
)

// MDNSServer is a registered DNS-SD service.
type MDNSServer interface {
	// Shutdown withdraws the service.
	Shutdown()
}

// MDNSServerFactory registers DNS-SD services.
type MDNSServerFactory interface {
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

// MDNSResolver browses for DNS-SD services.
//
// Browse starts a browse and returns without waiting for results. Entries
// are sent until ctx is done, after which the resolver closes entries,
// also when Browse returned an error. Callers must read entries until it
// is closed and must not close it themselves. grandcat/zeroconf behaves
// this way.
type MDNSResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

type zeroconfServerFactory struct{}

func (zeroconfServerFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver(ifaces []net.Interface) (*zeroconfResolver, error) {
	var opts []zeroconf.ClientOption
	if len(ifaces) > 0 {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	r, err := zeroconf.NewResolver(opts...)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}
