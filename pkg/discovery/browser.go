package discovery

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Browser finds Mumble servers.
type Browser interface {
	// Browse reports servers as they are found. The channel is closed when
	// ctx is done or the browser is stopped.
	Browse(ctx context.Context) (<-chan *Server, error)

	// List collects servers until ctx is done, sorted by instance name.
	List(ctx context.Context) ([]*Server, error)

	// Lookup returns the server with the given instance name.
	Lookup(ctx context.Context, instance string) (*Server, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds List and Lookup when ctx has no deadline.
	// Default: 5 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	mu      sync.Mutex
	stopped bool
	cancels []context.CancelFunc

	// browse runs the mDNS query. Replaced in tests.
	browse func(ctx context.Context, entries, removed chan<- ServiceEntry) error
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	b := &MDNSBrowser{config: config}
	b.browse = b.zeroconfBrowse
	return b
}

// Browse reports each server once, when first seen. Addresses from later
// answers are merged into the same Server.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan *Server, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, ErrBrowserClosed
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	entries := make(chan ServiceEntry)
	removed := make(chan ServiceEntry)
	out := make(chan *Server)

	go aggregate(ctx, entries, removed, out)
	go func() {
		// A failed query ends the browse instead of waiting out ctx
		if err := b.browse(ctx, entries, removed); err != nil {
			cancel()
		}
	}()

	return out, nil
}

// List collects servers until ctx is done or the browse timeout elapses.
func (b *MDNSBrowser) List(ctx context.Context) ([]*Server, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	servers := make([]*Server, 0)
	for svc := range results {
		servers = append(servers, svc)
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].Instance < servers[j].Instance })
	return servers, nil
}

// Lookup returns the first server advertised under instance.
func (b *MDNSBrowser) Lookup(ctx context.Context, instance string) (*Server, error) {
	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	for svc := range results {
		if svc.Instance == instance {
			return svc, nil
		}
	}
	return nil, ErrNotFound
}

// Stop stops all active browsing operations.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stopped = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

func (b *MDNSBrowser) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.config.BrowseTimeout)
}

// zeroconfBrowse runs a zeroconf query and forwards its answers.
func (b *MDNSBrowser) zeroconfBrowse(ctx context.Context, entries, removed chan<- ServiceEntry) error {
	zEntries := make(chan *zeroconf.ServiceEntry)
	zRemoved := make(chan *zeroconf.ServiceEntry)

	go forward(ctx, zEntries, entries)
	go forward(ctx, zRemoved, removed)

	return zeroconf.Browse(ctx, ServiceType, Domain, zEntries, zRemoved, b.browserOptions()...)
}

// browserOptions returns zeroconf client options based on config.
func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	// Select specific interface if configured
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

func forward(ctx context.Context, in <-chan *zeroconf.ServiceEntry, out chan<- ServiceEntry) {
	for {
		select {
		case entry, ok := <-in:
			if !ok {
				return
			}
			select {
			case out <- fromZeroconf(entry):
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// fromZeroconf converts a zeroconf entry to a ServiceEntry.
func fromZeroconf(entry *zeroconf.ServiceEntry) ServiceEntry {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return ServiceEntry{
		Instance: entry.Instance,
		Service:  entry.Service,
		Domain:   entry.Domain,
		Host:     entry.HostName,
		Port:     uint16(entry.Port),
		Text:     entry.Text,
		Addrs:    addrs,
	}
}

// aggregate merges answers by instance name and emits a snapshot of each
// new server once. It closes out when ctx is done.
func aggregate(ctx context.Context, entries, removed <-chan ServiceEntry, out chan<- *Server) {
	defer close(out)

	// Track servers by instance name, aggregating addresses
	servers := make(map[string]*Server)

	for {
		select {
		case entry := <-entries:
			if entry.Port == 0 {
				continue
			}

			existing, found := servers[entry.Instance]
			if found {
				existing.Addresses = mergeAddresses(existing.Addresses, entry.Addrs)
				continue
			}

			svc := entry.ToServer()
			servers[entry.Instance] = svc
			snapshot := *svc
			snapshot.Addresses = append([]string(nil), svc.Addresses...)
			select {
			case out <- &snapshot:
			case <-ctx.Done():
				return
			}

		case entry := <-removed:
			if existing, found := servers[entry.Instance]; found {
				existing.Addresses = removeAddresses(existing.Addresses, entry.Addrs)
				// If no addresses remain, forget the server
				if len(existing.Addresses) == 0 {
					delete(servers, entry.Instance)
				}
			}

		case <-ctx.Done():
			return
		}
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, new []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}

	for _, addr := range new {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses removes the given addresses from the list.
func removeAddresses(addresses, gone []string) []string {
	toRemove := make(map[string]bool, len(gone))
	for _, addr := range gone {
		toRemove[addr] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

// Ensure MDNSBrowser implements Browser interface.
var _ Browser = (*MDNSBrowser)(nil)
