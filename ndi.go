// Package ndi ties the module together as a plugin. It carries the
// plugin metadata and registers every element factory with a host
// registry; device discovery is exposed through NewDeviceProvider.
package ndi

import (
	"github.com/zsiec/ndi/discovery"
	"github.com/zsiec/ndi/element"
	"github.com/zsiec/ndi/ndilib"
	"github.com/zsiec/ndi/ndisink"
	"github.com/zsiec/ndi/ndisinkcombiner"
	"github.com/zsiec/ndi/ndisrc"
	"github.com/zsiec/ndi/ndisrcdemux"
)

// Version is the plugin version reported through PluginInfo.
const Version = "0.1.0"

// Info describes the plugin to a host.
type Info struct {
	Name        string
	Description string
	Version     string
}

// PluginInfo returns the plugin metadata.
func PluginInfo() Info {
	return Info{
		Name:        "ndi",
		Description: "NewTek NDI source, sink, and device provider",
		Version:     Version,
	}
}

// Register adds every element factory in this module to reg.
func Register(reg *element.Registry) error {
	for _, f := range []element.Factory{
		ndisrc.Factory(),
		ndisrcdemux.Factory(),
		ndisinkcombiner.Factory(),
		ndisink.Factory(),
	} {
		if err := reg.Register(f); err != nil {
			return err
		}
	}
	return nil
}

// NewDeviceProvider creates the NDI device provider. Discovery starts
// when the provider's Run is called.
func NewDeviceProvider(find ndilib.FindOptions, opts ...func(*discovery.Provider)) *discovery.Provider {
	return discovery.New(find, opts...)
}
