package flash

import (
	"github.com/oneconcern/flashfs/pkg/metrics"
	"go.uber.org/zap"
)

// Option configures an emulated flash part
type Option func(*Emulator)

// Halt sets the Halter invoked on fatal violations of the flash contract
func Halt(h Halter) Option {
	return func(e *Emulator) {
		if h != nil {
			e.halt = h
		}
	}
}

// Logger sets a logger for this device
func Logger(l *zap.Logger) Option {
	return func(e *Emulator) {
		if l != nil {
			e.l = l
		}
	}
}

// Metrics sets the metrics collected by this device
func Metrics(m *metrics.Flash) Option {
	return func(e *Emulator) {
		if m != nil {
			e.m = m
		}
	}
}

// SizeRegister sets the value of the device identification register, in KiB.
//
// Parts of a family share a page table but may expose less capacity than
// the table describes.
func SizeRegister(kb uint16) Option {
	return func(e *Emulator) {
		e.sizeKB = kb
	}
}
