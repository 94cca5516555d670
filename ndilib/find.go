package ndilib

import (
	"errors"
	"runtime"
	"time"
	"unsafe"
)

// Source identifies a sender on the network. Name is the full advertised
// name ("MACHINE (channel)"); URLAddress is the host:port the library
// resolved for it.
type Source struct {
	Name       string
	URLAddress string
}

// FindOptions configure discovery.
type FindOptions struct {
	// ShowLocalSources includes senders running on this machine.
	ShowLocalSources bool
	// Groups restricts discovery to a comma-separated list of groups;
	// empty means the library default.
	Groups string
	// ExtraIPs adds comma-separated addresses to query directly, for
	// senders outside the local subnet.
	ExtraIPs string
}

// DefaultFindOptions returns the discovery defaults: local sources shown,
// default groups.
func DefaultFindOptions() FindOptions {
	return FindOptions{ShowLocalSources: true}
}

// Finder watches the network for sources.
type Finder struct {
	inst uintptr
}

// NewFinder creates a discovery instance, loading the runtime first if
// needed.
func NewFinder(opts FindOptions) (*Finder, error) {
	if err := Load(); err != nil {
		return nil, err
	}

	create := findCreateT{
		showLocalSources: opts.ShowLocalSources,
		groups:           cStringOrNil(opts.Groups),
		extraIPs:         cStringOrNil(opts.ExtraIPs),
	}
	inst := lib.findCreateV2(&create)
	runtime.KeepAlive(&create)
	if inst == 0 {
		return nil, errors.New("creating NDI find instance failed")
	}
	return &Finder{inst: inst}, nil
}

// WaitForSources blocks until the set of discovered sources changes or the
// timeout passes, reporting whether it changed.
func (f *Finder) WaitForSources(timeout time.Duration) bool {
	return lib.findWaitForSources(f.inst, uint32(timeout.Milliseconds()))
}

// Sources returns the current set of discovered sources.
func (f *Finder) Sources() []Source {
	var n uint32
	p := lib.findGetCurrentSources(f.inst, &n)
	if p == nil || n == 0 {
		return nil
	}

	raw := unsafe.Slice(p, n)
	out := make([]Source, n)
	for i := range raw {
		out[i] = Source{
			Name:       goString(raw[i].ndiName),
			URLAddress: goString(raw[i].urlAddress),
		}
	}
	return out
}

// Close destroys the discovery instance.
func (f *Finder) Close() {
	if f.inst != 0 {
		lib.findDestroy(f.inst)
		f.inst = 0
	}
}
