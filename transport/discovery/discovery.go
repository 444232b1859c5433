// Package discovery locates a network-exposed serial-to-device bridge
// via mDNS, as an alternative to a static host:port or local tty path.
// It is purely additive: transport.Transport and session.Session never
// require it.
package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
)

// ServiceType is the mDNS service type a bridge advertises itself
// under.
const ServiceType = "_hexastorm-bridge._tcp.local."

// Bridge is one discovered network bridge to the device's serial bus.
type Bridge struct {
	Name string
	Host string
	Port int
}

// Browse watches for bridges until ctx is cancelled or done, returning
// every bridge that was announced and not removed again before then.
func Browse(ctx context.Context) ([]Bridge, error) {
	var found = make(map[string]Bridge)

	var add = func(e dnssd.BrowseEntry) {
		var host = ""
		if len(e.IPs) > 0 {
			host = e.IPs[0].String()
		}
		found[e.Name] = Bridge{Name: e.Name, Host: host, Port: e.Port}
	}
	var remove = func(e dnssd.BrowseEntry) {
		delete(found, e.Name)
	}

	if err := dnssd.LookupType(ctx, ServiceType, add, remove); err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("discovery: browse %s: %w", ServiceType, err)
	}

	var out = make([]Bridge, 0, len(found))
	for _, b := range found {
		out = append(out, b)
	}
	return out, nil
}
