package network

import (
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	rcmgr "github.com/libp2p/go-libp2p/p2p/host/resource-manager"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"

	"github.com/danielabrozzoni/cosignerd/internal/types"
)

// NewHost builds the libp2p host the cosigner listens on. The host uses
// the daemon's long-lived identity key, speaks TCP only and accepts a
// single connection per peer: each manager wallet keeps one channel.
func NewHost(cfg *types.NetworkConfig, identity crypto.PrivKey) (host.Host, error) {
	if identity == nil {
		return nil, fmt.Errorf("identity key required")
	}

	listenAddrs := make([]multiaddr.Multiaddr, 0, len(cfg.Addresses))
	for _, addrStr := range cfg.Addresses {
		addr, err := multiaddr.NewMultiaddr(addrStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, addrStr, err)
		}
		listenAddrs = append(listenAddrs, addr)
	}

	connManager, err := connmgr.NewConnManager(
		4,  // low watermark: a handful of manager connections
		32, // high watermark: start pruning beyond this
		connmgr.WithGracePeriod(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}

	// One connection per peer is enough for a request/response signer
	limits := rcmgr.PartialLimitConfig{
		PeerDefault: rcmgr.ResourceLimits{
			Conns:         rcmgr.LimitVal(1),
			ConnsInbound:  rcmgr.LimitVal(1),
			ConnsOutbound: rcmgr.LimitVal(1),
		},
	}.Build(rcmgr.DefaultLimits.AutoScale())

	resourceManager, err := rcmgr.NewResourceManager(rcmgr.NewFixedLimiter(limits))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource manager: %w", err)
	}

	opts := []libp2p.Option{
		libp2p.Identity(identity),
		libp2p.ListenAddrs(listenAddrs...),
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.DefaultSecurity,
		libp2p.DefaultMuxers,
		libp2p.ConnectionManager(connManager),
		libp2p.ResourceManager(resourceManager),
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}

	return h, nil
}
