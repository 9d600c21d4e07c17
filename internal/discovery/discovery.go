// Package discovery advertises relays on the local network and finds them.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/grandcat/zeroconf"
)

const (
	// Service is the mDNS service type of a relay.
	Service = "_collabtext._tcp"
	domain  = "local."
)

// Peer is a discovered relay.
type Peer struct {
	Instance string
	Host     string
	Port     int
}

// URL returns the websocket endpoint of the relay.
func (p Peer) URL() string {
	return fmt.Sprintf("ws://%s/ws", net.JoinHostPort(p.Host, fmt.Sprint(p.Port)))
}

// Advertise registers the relay listening on port until the returned
// function is called.
func Advertise(document string, port int, log *slog.Logger) (func(), error) {
	if log == nil {
		log = slog.Default()
	}
	host, _ := os.Hostname()
	server, err := zeroconf.Register(
		fmt.Sprintf("CollabText-%s", host),
		Service,
		domain,
		port,
		[]string{"txtv=0", "doc=" + document},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("register mdns service: %w", err)
	}
	log.Info("mdns service registered", "service", Service, "port", port)
	return server.Shutdown, nil
}

// Browse collects relays until ctx is done.
func Browse(ctx context.Context, log *slog.Logger) ([]Peer, error) {
	if log == nil {
		log = slog.Default()
	}
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("init mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	found := make(chan []Peer, 1)
	go func() { found <- collect(entries, log) }()

	if err := resolver.Browse(ctx, Service, domain, entries); err != nil {
		return nil, fmt.Errorf("browse mdns services: %w", err)
	}
	// The resolver closes entries once ctx is done.
	return <-found, nil
}

// collect drains entries until the channel is closed.
func collect(entries <-chan *zeroconf.ServiceEntry, log *slog.Logger) []Peer {
	var peers []Peer
	for entry := range entries {
		p, ok := peerOf(entry)
		if !ok {
			continue
		}
		log.Info("mdns discovered relay", "instance", p.Instance, "host", p.Host, "port", p.Port)
		peers = append(peers, p)
	}
	return peers
}

func peerOf(e *zeroconf.ServiceEntry) (Peer, bool) {
	p := Peer{Instance: e.Instance, Port: e.Port}
	switch {
	case len(e.AddrIPv4) > 0:
		p.Host = e.AddrIPv4[0].String()
	case len(e.AddrIPv6) > 0:
		p.Host = e.AddrIPv6[0].String()
	default:
		return Peer{}, false
	}
	return p, true
}
