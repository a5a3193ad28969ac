package cmd

import (
	"github.com/oneconcern/flashfs/pkg/dlogger"
	"github.com/oneconcern/flashfs/pkg/errors"
	"github.com/oneconcern/flashfs/pkg/files"
	"github.com/oneconcern/flashfs/pkg/flash"
	"github.com/oneconcern/flashfs/pkg/logstore"
	"github.com/oneconcern/flashfs/pkg/metrics"
	"github.com/oneconcern/flashfs/pkg/ramcache"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var errNoConfig = errors.New("no valid configuration")

// session holds the stack opened by a command: emulated part, log store,
// RAM cache and file system
type session struct {
	l        *zap.Logger
	registry *prometheus.Registry
	metrics  *metrics.M
	geometry flash.Geometry
	device   *flash.Emulator
	store    *logstore.Store
	budget   *ramcache.Budget
	cache    *ramcache.Cache
	fs       *files.FileSystem
}

// openSession opens the flash image and mounts the store, formatting it when
// no valid bank is found
func openSession() (*session, error) {
	s, err := openDevice()
	if err != nil {
		return nil, err
	}
	fs, err := files.Open(s.store, files.Logger(s.l), files.Cache(s.cache))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.fs = fs
	return s, nil
}

// openDevice prepares the stack without mounting the store
func openDevice() (*session, error) {
	if settings == nil {
		return nil, errNoConfig
	}
	l, err := dlogger.GetLogger(settings.LogLevel, dlogger.Console(), dlogger.Named("flashfs"))
	if err != nil {
		return nil, err
	}
	s := &session{
		l:        l,
		registry: prometheus.NewRegistry(),
	}
	s.metrics = metrics.New(s.registry)

	if s.geometry, err = settings.Geometry(); err != nil {
		return nil, err
	}
	kb, err := settings.SizeRegister()
	if err != nil {
		return nil, err
	}
	deviceOpts := []flash.Option{
		flash.Halt(halt),
		flash.Logger(l.Named("flash")),
		flash.Metrics(s.metrics.Flash),
	}
	if kb > 0 {
		deviceOpts = append(deviceOpts, flash.SizeRegister(kb))
	}
	s.device, err = flash.NewEmulator(appFs, settings.Device.Image, s.geometry, deviceOpts...)
	if err != nil {
		return nil, err
	}

	region, err := settings.Region()
	if err != nil {
		s.Close()
		return nil, err
	}
	storeOpts, err := settings.StoreOptions()
	if err != nil {
		s.Close()
		return nil, err
	}
	storeOpts = append(storeOpts,
		logstore.Halt(halt),
		logstore.Logger(l.Named("logstore")),
		logstore.Metrics(s.metrics.Store),
	)
	s.store, err = logstore.New(s.device, region, storeOpts...)
	if err != nil {
		s.Close()
		return nil, err
	}

	budget, err := settings.Budget()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.budget = ramcache.NewBudget(budget)
	s.cache = ramcache.New(s.store,
		ramcache.WithAllocator(s.budget),
		ramcache.Logger(l.Named("ramcache")),
		ramcache.Metrics(s.metrics.Cache),
	)
	return s, nil
}

// Close the flash image
func (s *session) Close() {
	if s.cache != nil {
		s.cache.ClearAll()
	}
	if s.device != nil {
		if err := s.device.Close(); err != nil {
			s.l.Warn("closing flash image", zap.Error(err))
		}
	}
	_ = s.l.Sync()
}

// withSession runs fn over an opened session, or exits
func withSession(action string, fn func(*session) error) {
	s, err := openSession()
	if err != nil {
		wrapFatalln("open flash file system", err)
		return
	}
	defer s.Close()
	if err := fn(s); err != nil {
		wrapFatalln(action, err)
	}
}
