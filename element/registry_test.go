package element

import (
	"strings"
	"testing"
)

type testElement struct {
	name string
}

func (e *testElement) Name() string { return e.name }

func testFactory(name string) Factory {
	return Factory{
		Name: name,
		New: func(props Properties) (Element, error) {
			return &testElement{name: name}, nil
		},
	}
}

func TestRegistryRegisterAndNew(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(testFactory("ndisrc")); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	el, err := r.New("ndisrc", nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if el.Name() != "ndisrc" {
		t.Errorf("got name %q, want %q", el.Name(), "ndisrc")
	}
}

func TestRegistryDuplicate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(testFactory("ndisink")); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}
	if err := r.Register(testFactory("ndisink")); err == nil {
		t.Fatal("duplicate Register succeeded, want error")
	}
}

func TestRegistryRejectsInvalidFactory(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(Factory{Name: ""}); err == nil {
		t.Error("empty name accepted")
	}
	if err := r.Register(Factory{Name: "broken"}); err == nil {
		t.Error("nil constructor accepted")
	}
}

func TestRegistryUnknownName(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if _, err := r.New("nope", nil); err == nil {
		t.Fatal("New for unknown name succeeded, want error")
	}
}

func TestRegistryNames(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{"ndisrc", "ndisink", "ndisrcdemux"} {
		if err := r.Register(testFactory(name)); err != nil {
			t.Fatalf("Register %s failed: %v", name, err)
		}
	}

	got := strings.Join(r.Names(), ",")
	want := "ndisink,ndisrc,ndisrcdemux"
	if got != want {
		t.Errorf("got names %q, want %q", got, want)
	}
}

func TestDecodeProperties(t *testing.T) {
	t.Parallel()

	type config struct {
		NDIName        string `json:"ndi-name"`
		ConnectTimeout uint32 `json:"connect-timeout"`
		MaxQueueLength int    `json:"max-queue-length"`
	}

	var cfg config
	err := DecodeProperties(Properties{
		"ndi-name":        "CAM1 (Studio)",
		"connect-timeout": 2000,
	}, &cfg)
	if err != nil {
		t.Fatalf("DecodeProperties failed: %v", err)
	}
	if cfg.NDIName != "CAM1 (Studio)" {
		t.Errorf("got ndi-name %q, want %q", cfg.NDIName, "CAM1 (Studio)")
	}
	if cfg.ConnectTimeout != 2000 {
		t.Errorf("got connect-timeout %d, want 2000", cfg.ConnectTimeout)
	}
	if cfg.MaxQueueLength != 0 {
		t.Errorf("got max-queue-length %d, want zero value", cfg.MaxQueueLength)
	}
}

func TestDecodePropertiesUnknownKey(t *testing.T) {
	t.Parallel()

	var cfg struct {
		NDIName string `json:"ndi-name"`
	}
	err := DecodeProperties(Properties{"nid-name": "typo"}, &cfg)
	if err == nil {
		t.Fatal("unknown property accepted, want error")
	}
}
