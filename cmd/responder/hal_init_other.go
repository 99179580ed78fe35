//go:build !linux
// +build !linux

package main

import (
	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/hal"
	"github.com/blasphemetheus/d2d-responder/internal/hal/fakehal"
)

// initHAL always uses the fake HAL off Linux, since the SPI/GPIO
// providers this unit drives have no non-Linux implementation.
func initHAL(log *zap.Logger) {
	log.Info("non-linux platform detected, using fake HAL")
	hal.SetGlobalHAL(fakehal.New())
}
