package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zsiec/ndi/element"
	"github.com/zsiec/ndi/ndilib"
)

type fakeStep struct {
	sources []ndilib.Source
	changed bool
}

// fakeFinder hands the find loop one scripted snapshot per WaitForSources
// call, blocking until the test pushes the next step.
type fakeFinder struct {
	steps chan fakeStep

	mu     sync.Mutex
	cur    []ndilib.Source
	waits  []time.Duration
	closed bool
}

func newFakeFinder() *fakeFinder {
	return &fakeFinder{steps: make(chan fakeStep, 8)}
}

func (f *fakeFinder) push(sources ...ndilib.Source) {
	f.steps <- fakeStep{sources: sources, changed: true}
}

func (f *fakeFinder) pushUnchanged() {
	f.steps <- fakeStep{}
}

func (f *fakeFinder) WaitForSources(timeout time.Duration) bool {
	f.mu.Lock()
	f.waits = append(f.waits, timeout)
	f.mu.Unlock()

	step, ok := <-f.steps
	if !ok || !step.changed {
		return false
	}
	f.mu.Lock()
	f.cur = step.sources
	f.mu.Unlock()
	return true
}

func (f *fakeFinder) Sources() []ndilib.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cur
}

func (f *fakeFinder) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeFinder) waitCalls() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// startProvider runs a provider against a fake finder and returns a stop
// function that shuts the loop down and waits for Run to return.
func startProvider(t *testing.T) (*Provider, *fakeFinder) {
	t.Helper()

	fake := newFakeFinder()
	p := New(ndilib.FindOptions{}, ProviderOptFinder(fake))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		close(fake.steps)
		select {
		case err := <-done:
			if !errors.Is(err, context.Canceled) {
				t.Errorf("Run returned %v, want context.Canceled", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("provider did not stop")
		}
	})
	return p, fake
}

func expectEvent(t *testing.T, p *Provider, want Event) {
	t.Helper()
	select {
	case got := <-p.Events():
		if got != want {
			t.Fatalf("event = %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("no event, want %+v", want)
	}
}

func TestRunEmitsAddedAndRemoved(t *testing.T) {
	t.Parallel()

	p, fake := startProvider(t)

	camA := ndilib.Source{Name: "MACHINE (Cam A)", URLAddress: "10.0.0.1:5961"}
	camB := ndilib.Source{Name: "MACHINE (Cam B)", URLAddress: "10.0.0.2:5961"}
	camC := ndilib.Source{Name: "MACHINE (Cam C)", URLAddress: "10.0.0.3:5961"}

	fake.push(camA, camB)
	expectEvent(t, p, Event{Kind: DeviceAdded, Device: Device(camA)})
	expectEvent(t, p, Event{Kind: DeviceAdded, Device: Device(camB)})

	fake.push(camA)
	expectEvent(t, p, Event{Kind: DeviceRemoved, Device: Device(camB)})

	fake.push(camA, camC)
	expectEvent(t, p, Event{Kind: DeviceAdded, Device: Device(camC)})

	got := p.Devices()
	want := []Device{Device(camA), Device(camC)}
	if len(got) != len(want) {
		t.Fatalf("Devices() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Devices()[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestRunUnchangedSnapshotEmitsNothing(t *testing.T) {
	t.Parallel()

	p, fake := startProvider(t)

	camA := ndilib.Source{Name: "MACHINE (Cam A)", URLAddress: "10.0.0.1:5961"}
	camB := ndilib.Source{Name: "MACHINE (Cam B)", URLAddress: "10.0.0.2:5961"}

	fake.push(camA)
	expectEvent(t, p, Event{Kind: DeviceAdded, Device: Device(camA)})

	// An identical snapshot and a no-change pass produce no events, so
	// the next delivered event comes from the third push.
	fake.push(camA)
	fake.pushUnchanged()
	fake.push(camA, camB)
	expectEvent(t, p, Event{Kind: DeviceAdded, Device: Device(camB)})
}

func TestRunPollTimeouts(t *testing.T) {
	t.Parallel()

	_, fake := startProvider(t)

	fake.pushUnchanged()
	fake.pushUnchanged()
	waitFor(t, "three wait calls", func() bool { return len(fake.waitCalls()) >= 3 })

	waits := fake.waitCalls()
	if waits[0] != time.Second {
		t.Errorf("first wait = %v, want %v", waits[0], time.Second)
	}
	if waits[1] != 5*time.Second || waits[2] != 5*time.Second {
		t.Errorf("later waits = %v, want 5s each", waits[1:3])
	}
}

func TestRunAddressChangeReplacesDevice(t *testing.T) {
	t.Parallel()

	p, fake := startProvider(t)

	before := ndilib.Source{Name: "MACHINE (Cam A)", URLAddress: "10.0.0.1:5961"}
	after := ndilib.Source{Name: "MACHINE (Cam A)", URLAddress: "10.0.0.1:5962"}

	fake.push(before)
	expectEvent(t, p, Event{Kind: DeviceAdded, Device: Device(before)})

	fake.push(after)
	expectEvent(t, p, Event{Kind: DeviceRemoved, Device: Device(before)})
	expectEvent(t, p, Event{Kind: DeviceAdded, Device: Device(after)})
}

func TestDevicesSorted(t *testing.T) {
	t.Parallel()

	p, fake := startProvider(t)

	camB := ndilib.Source{Name: "MACHINE (Cam B)", URLAddress: "10.0.0.2:5961"}
	camA := ndilib.Source{Name: "MACHINE (Cam A)", URLAddress: "10.0.0.1:5961"}

	fake.push(camB, camA)
	expectEvent(t, p, Event{Kind: DeviceAdded, Device: Device(camB)})
	expectEvent(t, p, Event{Kind: DeviceAdded, Device: Device(camA)})

	devs := p.Devices()
	if len(devs) != 2 || devs[0].Name != camA.Name || devs[1].Name != camB.Name {
		t.Errorf("Devices() = %+v, want sorted by name", devs)
	}
}

func TestRunClosesFinder(t *testing.T) {
	t.Parallel()

	fake := newFakeFinder()
	p := New(ndilib.FindOptions{}, ProviderOptFinder(fake))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	cancel()
	close(fake.steps)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("provider did not stop")
	}

	fake.mu.Lock()
	closed := fake.closed
	fake.mu.Unlock()
	if !closed {
		t.Error("finder not closed after Run returned")
	}
}

func TestNewSource(t *testing.T) {
	t.Parallel()

	p := New(ndilib.FindOptions{}, ProviderOptFinder(newFakeFinder()))
	dev := Device{Name: "MACHINE (Cam A)", URLAddress: "10.0.0.1:5961"}

	src, err := p.NewSource(dev, element.Properties{"timeout": "10s"})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	cfg := src.Config()
	if cfg.NDIName != dev.Name {
		t.Errorf("ndi-name = %q, want %q", cfg.NDIName, dev.Name)
	}
	if cfg.URLAddress != dev.URLAddress {
		t.Errorf("url-address = %q, want %q", cfg.URLAddress, dev.URLAddress)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", cfg.Timeout)
	}
}

func TestNewSourceDeviceOverridesExtra(t *testing.T) {
	t.Parallel()

	p := New(ndilib.FindOptions{}, ProviderOptFinder(newFakeFinder()))
	dev := Device{Name: "MACHINE (Cam A)", URLAddress: "10.0.0.1:5961"}

	src, err := p.NewSource(dev, element.Properties{"ndi-name": "other"})
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if got := src.Config().NDIName; got != dev.Name {
		t.Errorf("ndi-name = %q, want %q", got, dev.Name)
	}
}

func TestNewSourceRejectsUnknownProperty(t *testing.T) {
	t.Parallel()

	p := New(ndilib.FindOptions{}, ProviderOptFinder(newFakeFinder()))
	dev := Device{Name: "MACHINE (Cam A)", URLAddress: "10.0.0.1:5961"}

	if _, err := p.NewSource(dev, element.Properties{"bogus": true}); err == nil {
		t.Error("NewSource with unknown property succeeded, want error")
	}
}
