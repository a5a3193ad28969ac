package config

import (
	"bytes"
	"testing"

	"github.com/oneconcern/flashfs/pkg/errors"
	"github.com/oneconcern/flashfs/pkg/flash"
	"github.com/oneconcern/flashfs/pkg/ramcache"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(viper.New())
	require.NoError(t, err)
	assert.Equal(t, Default(), *c)

	geo, err := c.Geometry()
	require.NoError(t, err)
	assert.Equal(t, flash.STM32F4.Capacity(), geo.Capacity())

	region, err := c.Region()
	require.NoError(t, err)
	assert.Equal(t, flash.Region{Start: 0x08080000, Size: 256 * 1024}, region)

	budget, err := c.Budget()
	require.NoError(t, err)
	assert.Equal(t, ramcache.DefaultBudget, budget)

	kb, err := c.SizeRegister()
	require.NoError(t, err)
	assert.Zero(t, kb)

	opts, err := c.StoreOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 2)
}

func TestLoadYAML(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBufferString(`
device:
  image: /tmp/part.img
  geometry: STM32F4
  size: 512KiB
  bootSize: 16KiB
store:
  start: "0x08040000"
  size: 128KiB
  minGCSpacing: 4
  lowWater: 8KiB
  compression: true
cache:
  budget: 64k
logLevel: debug
`)))

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/part.img", c.Device.Image)
	assert.True(t, c.Store.Compression)
	assert.Equal(t, 4, c.Store.MinGCSpacing)
	assert.Equal(t, "debug", c.LogLevel)

	geo, err := c.Geometry()
	require.NoError(t, err)
	assert.EqualValues(t, 16*1024, geo.BootSize)

	kb, err := c.SizeRegister()
	require.NoError(t, err)
	assert.EqualValues(t, 512, kb)

	region, err := c.Region()
	require.NoError(t, err)
	assert.Equal(t, flash.Region{Start: 0x08040000, Size: 128 * 1024}, region)

	low, err := c.LowWater()
	require.NoError(t, err)
	assert.EqualValues(t, 8*1024, low)

	budget, err := c.Budget()
	require.NoError(t, err)
	assert.Equal(t, 64*1024, budget)

	opts, err := c.StoreOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 3)
}

func TestValidate(t *testing.T) {
	for _, toPin := range []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no image", mutate: func(c *Config) { c.Device.Image = "" }},
		{name: "unknown geometry", mutate: func(c *Config) { c.Device.Geometry = "nrf52" }},
		{name: "bad boot size", mutate: func(c *Config) { c.Device.BootSize = "lots" }},
		{name: "boot covers part", mutate: func(c *Config) { c.Device.BootSize = "1MiB" }},
		{name: "size not in KiB", mutate: func(c *Config) { c.Device.Size = "1000" }},
		{name: "bad start", mutate: func(c *Config) { c.Store.Start = "top" }},
		{name: "bad store size", mutate: func(c *Config) { c.Store.Size = "-1" }},
		{name: "region past the part", mutate: func(c *Config) { c.Store.Size = "1MiB" }},
		{name: "region below the part", mutate: func(c *Config) { c.Store.Start = "0x1000" }},
		{name: "bad low water", mutate: func(c *Config) { c.Store.LowWater = "x" }},
		{name: "bad budget", mutate: func(c *Config) { c.Cache.Budget = "y" }},
	} {
		fixture := toPin
		t.Run(fixture.name, func(t *testing.T) {
			c := Default()
			fixture.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("FLASHFS_STORE_SIZE", "64KiB")
	v := viper.New()
	v.SetEnvPrefix("flashfs")
	v.SetEnvKeyReplacer(EnvKeyReplacer())
	v.AutomaticEnv()

	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "64KiB", c.Store.Size)
}
