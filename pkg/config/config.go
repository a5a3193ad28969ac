// Package config holds the settings of an emulated flash part and of the file
// system stored on it.
//
// Settings are read with viper, so they may come from a config file, from
// FLASHFS_* environment variables or from bound command line flags.
// Sizes are human readable strings such as "32KiB" or "1MB".
package config

import (
	"strings"

	"github.com/docker/go-units"
	"github.com/oneconcern/flashfs/pkg/errors"
	"github.com/oneconcern/flashfs/pkg/flash"
	"github.com/oneconcern/flashfs/pkg/logstore"
	"github.com/oneconcern/flashfs/pkg/ramcache"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// ErrInvalid is returned when a setting cannot be interpreted
var ErrInvalid = errors.New("invalid configuration")

// Presets are the known page tables, by name
var Presets = map[string]flash.Geometry{
	"stm32f4": flash.STM32F4,
}

// Device describes the emulated flash part
type Device struct {
	Image    string `json:"image" yaml:"image" mapstructure:"image"`
	Geometry string `json:"geometry" yaml:"geometry" mapstructure:"geometry"`
	// Size is the value exposed by the flash size register. Empty means the full part.
	Size     string `json:"size,omitempty" yaml:"size,omitempty" mapstructure:"size"`
	BootSize string `json:"bootSize,omitempty" yaml:"bootSize,omitempty" mapstructure:"bootSize"`
}

// Store describes the log store region and its collection policy
type Store struct {
	Start        string `json:"start" yaml:"start" mapstructure:"start"`
	Size         string `json:"size" yaml:"size" mapstructure:"size"`
	MinGCSpacing int    `json:"minGCSpacing" yaml:"minGCSpacing" mapstructure:"minGCSpacing"`
	LowWater     string `json:"lowWater,omitempty" yaml:"lowWater,omitempty" mapstructure:"lowWater"`
	Compression  bool   `json:"compression" yaml:"compression" mapstructure:"compression"`
}

// Cache describes the RAM cache
type Cache struct {
	Budget string `json:"budget" yaml:"budget" mapstructure:"budget"`
}

// Config is the complete configuration
type Config struct {
	Device   Device `json:"device" yaml:"device" mapstructure:"device"`
	Store    Store  `json:"store" yaml:"store" mapstructure:"store"`
	Cache    Cache  `json:"cache" yaml:"cache" mapstructure:"cache"`
	LogLevel string `json:"logLevel" yaml:"logLevel" mapstructure:"logLevel"`
}

// Default configuration: the upper half of a STM32F4 part
func Default() Config {
	return Config{
		Device: Device{
			Image:    "flash.img",
			Geometry: "stm32f4",
		},
		Store: Store{
			Start:        "0x08080000",
			Size:         "256KiB",
			MinGCSpacing: logstore.DefaultMinGCSpacing,
		},
		Cache: Cache{
			Budget: units.BytesSize(float64(ramcache.DefaultBudget)),
		},
		LogLevel: "info",
	}
}

// EnvKeyReplacer maps nested keys to environment variable names,
// e.g. store.size to FLASHFS_STORE_SIZE
func EnvKeyReplacer() *strings.Replacer {
	return strings.NewReplacer(".", "_")
}

// SetDefaults registers the default values with viper
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("device.image", d.Device.Image)
	v.SetDefault("device.geometry", d.Device.Geometry)
	v.SetDefault("store.start", d.Store.Start)
	v.SetDefault("store.size", d.Store.Size)
	v.SetDefault("store.minGCSpacing", d.Store.MinGCSpacing)
	v.SetDefault("store.compression", d.Store.Compression)
	v.SetDefault("cache.budget", d.Cache.Budget)
	v.SetDefault("logLevel", d.LogLevel)
}

// Load the configuration known to viper, then validate it
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, ErrInvalid.Wrap(err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every setting can be interpreted
func (c Config) Validate() error {
	if c.Device.Image == "" {
		return ErrInvalid.WrapMessage("no flash image")
	}
	geo, err := c.Geometry()
	if err != nil {
		return err
	}
	if _, err = c.SizeRegister(); err != nil {
		return err
	}
	region, err := c.Region()
	if err != nil {
		return err
	}
	if region.Start < geo.Base || region.End() > geo.Base+geo.Capacity() {
		return ErrInvalid.WrapMessage("store region %v is outside of the part", region)
	}
	if _, err = c.LowWater(); err != nil {
		return err
	}
	if _, err = c.Budget(); err != nil {
		return err
	}
	return nil
}

// Geometry resolves the page table preset, with any boot size override
func (c Config) Geometry() (flash.Geometry, error) {
	geo, ok := Presets[strings.ToLower(c.Device.Geometry)]
	if !ok {
		return flash.Geometry{}, ErrInvalid.WrapMessage("unknown geometry %q", c.Device.Geometry)
	}
	if c.Device.BootSize != "" {
		boot, err := size(c.Device.BootSize)
		if err != nil {
			return flash.Geometry{}, err
		}
		geo.BootSize = boot
	}
	if err := geo.Validate(); err != nil {
		return flash.Geometry{}, ErrInvalid.Wrap(err)
	}
	return geo, nil
}

// SizeRegister is the flash size register value in KiB. Zero leaves the
// register matching the full part.
func (c Config) SizeRegister() (uint16, error) {
	if c.Device.Size == "" {
		return 0, nil
	}
	s, err := size(c.Device.Size)
	if err != nil {
		return 0, err
	}
	if s%units.KiB != 0 || s/units.KiB > 0xffff {
		return 0, ErrInvalid.WrapMessage("flash size %s is not a whole number of KiB", c.Device.Size)
	}
	return uint16(s / units.KiB), nil
}

// Region of flash holding the log store
func (c Config) Region() (flash.Region, error) {
	start, err := cast.ToUint32E(c.Store.Start)
	if err != nil {
		return flash.Region{}, ErrInvalid.WrapMessage("store start %q", c.Store.Start).Wrap(err)
	}
	s, err := size(c.Store.Size)
	if err != nil {
		return flash.Region{}, err
	}
	return flash.Region{Start: start, Size: s}, nil
}

// LowWater mark of the store. Zero leaves the store default.
func (c Config) LowWater() (uint32, error) {
	if c.Store.LowWater == "" {
		return 0, nil
	}
	return size(c.Store.LowWater)
}

// Budget of the RAM cache in bytes
func (c Config) Budget() (int, error) {
	if c.Cache.Budget == "" {
		return ramcache.DefaultBudget, nil
	}
	s, err := size(c.Cache.Budget)
	return int(s), err
}

// StoreOptions translates the store settings into log store options
func (c Config) StoreOptions() ([]logstore.Option, error) {
	opts := []logstore.Option{
		logstore.MinGCSpacing(c.Store.MinGCSpacing),
		logstore.Compression(c.Store.Compression),
	}
	low, err := c.LowWater()
	if err != nil {
		return nil, err
	}
	if low > 0 {
		opts = append(opts, logstore.LowWater(low))
	}
	return opts, nil
}

func size(s string) (uint32, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, ErrInvalid.WrapMessage("size %q", s).Wrap(err)
	}
	if n < 0 || n > 0xffffffff {
		return 0, ErrInvalid.WrapMessage("size %q out of range", s)
	}
	return uint32(n), nil
}
