// Package discovery implements the NDI device provider. A background
// find loop watches the network for senders and reports each one
// appearing or disappearing as a device event; discovered devices can
// be turned directly into configured source elements.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zsiec/ndi/element"
	"github.com/zsiec/ndi/ndilib"
	"github.com/zsiec/ndi/ndisrc"
)

// ProviderName is the host-visible name of the device provider.
const ProviderName = "ndideviceprovider"

// Wait timeouts for the find loop. The first pass returns quickly so
// startup sees an initial snapshot; later passes poll slowly.
const (
	firstWaitTimeout = time.Second
	pollWaitTimeout  = 5 * time.Second
)

// eventBufferSize is the capacity of the event channel.
const eventBufferSize = 16

var instances atomic.Int64

// Device identifies a discovered sender. Two devices are the same only
// if both the advertised name and the resolved address match; a sender
// that moves address is reported as removed and added again.
type Device struct {
	Name       string
	URLAddress string
}

// EventKind says whether a device appeared or disappeared.
type EventKind int

const (
	DeviceAdded EventKind = iota
	DeviceRemoved
)

func (k EventKind) String() string {
	switch k {
	case DeviceAdded:
		return "added"
	case DeviceRemoved:
		return "removed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a single device change observed by the find loop.
type Event struct {
	Kind   EventKind
	Device Device
}

// SourceFinder is the discovery side of the vendor library.
// *ndilib.Finder implements it; tests substitute their own.
type SourceFinder interface {
	WaitForSources(timeout time.Duration) bool
	Sources() []ndilib.Source
	Close()
}

// Provider watches the network for NDI senders.
type Provider struct {
	log    *slog.Logger
	name   string
	find   ndilib.FindOptions
	finder SourceFinder

	events chan Event

	mu    sync.Mutex
	known map[Device]struct{}
}

// ProviderOptLogger sets the logger.
func ProviderOptLogger(log *slog.Logger) func(*Provider) {
	return func(p *Provider) {
		p.log = log.With("component", ProviderName, "name", p.name)
	}
}

// ProviderOptFinder substitutes the discovery finder, used by tests.
func ProviderOptFinder(f SourceFinder) func(*Provider) {
	return func(p *Provider) {
		p.finder = f
	}
}

// New creates a device provider. Discovery starts when Run is called.
func New(find ndilib.FindOptions, opts ...func(*Provider)) *Provider {
	name := fmt.Sprintf("%s%d", ProviderName, instances.Add(1)-1)
	p := &Provider{
		log:    slog.With("component", ProviderName, "name", name),
		name:   name,
		find:   find,
		events: make(chan Event, eventBufferSize),
		known:  make(map[Device]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider's instance name.
func (p *Provider) Name() string {
	return p.name
}

// Events reports device changes observed by Run. Removals are delivered
// before additions within one pass.
func (p *Provider) Events() <-chan Event {
	return p.events
}

// Devices returns a snapshot of the currently known devices, sorted by
// name.
func (p *Provider) Devices() []Device {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Device, 0, len(p.known))
	for dev := range p.known {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].URLAddress < out[j].URLAddress
	})
	return out
}

// Run drives discovery until ctx is done. It creates the finder, waits
// for the source list to change, and diffs each snapshot against the
// known devices, emitting Removed and Added events.
func (p *Provider) Run(ctx context.Context) error {
	finder := p.finder
	if finder == nil {
		f, err := ndilib.NewFinder(p.find)
		if err != nil {
			return fmt.Errorf("starting discovery: %w", err)
		}
		finder = f
	}
	defer finder.Close()

	p.log.Info("discovery running",
		"show_local_sources", p.find.ShowLocalSources, "groups", p.find.Groups)

	timeout := firstWaitTimeout
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		changed := finder.WaitForSources(timeout)
		timeout = pollWaitTimeout
		if !changed {
			p.log.Debug("no new sources found")
			continue
		}

		p.refresh(ctx, finder.Sources())
	}
}

// refresh diffs a source snapshot against the known devices.
func (p *Provider) refresh(ctx context.Context, sources []ndilib.Source) {
	seen := make(map[Device]struct{}, len(sources))
	for _, src := range sources {
		seen[Device{Name: src.Name, URLAddress: src.URLAddress}] = struct{}{}
	}

	p.mu.Lock()
	var removed, added []Device
	for dev := range p.known {
		if _, ok := seen[dev]; !ok {
			delete(p.known, dev)
			removed = append(removed, dev)
		}
	}
	for _, src := range sources {
		dev := Device{Name: src.Name, URLAddress: src.URLAddress}
		if _, ok := p.known[dev]; !ok {
			p.known[dev] = struct{}{}
			added = append(added, dev)
		}
	}
	p.mu.Unlock()

	for _, dev := range removed {
		p.log.Info("device removed", "ndi_name", dev.Name, "url_address", dev.URLAddress)
		p.emit(ctx, Event{Kind: DeviceRemoved, Device: dev})
	}
	for _, dev := range added {
		p.log.Info("device added", "ndi_name", dev.Name, "url_address", dev.URLAddress)
		p.emit(ctx, Event{Kind: DeviceAdded, Device: dev})
	}
}

func (p *Provider) emit(ctx context.Context, ev Event) {
	select {
	case p.events <- ev:
	case <-ctx.Done():
	}
}

// NewSource builds an ndisrc element addressing the given device. The
// device's name and address override any addressing in extra.
func (p *Provider) NewSource(dev Device, extra element.Properties) (*ndisrc.Source, error) {
	props := make(element.Properties, len(extra)+2)
	for k, v := range extra {
		props[k] = v
	}
	props["ndi-name"] = dev.Name
	props["url-address"] = dev.URLAddress

	return ndisrc.New(props)
}
