//go:build linux
// +build linux

package main

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/blasphemetheus/d2d-responder/internal/hal"
	"github.com/blasphemetheus/d2d-responder/internal/hal/fakehal"
)

// initHAL selects the real Raspberry Pi HAL on ARM boards and falls
// back to the in-memory fake everywhere else, so the same binary runs
// on the field unit and on a developer's amd64 laptop.
func initHAL(log *zap.Logger) {
	if runtime.GOARCH == "arm64" || runtime.GOARCH == "arm" {
		rpiHAL, err := hal.NewRaspberryPiHAL()
		if err != nil {
			log.Warn("failed to initialize raspberry pi HAL, using fake HAL", zap.Error(err))
			hal.SetGlobalHAL(fakehal.New())
			return
		}
		log.Info("raspberry pi HAL initialized", zap.String("board", rpiHAL.Info().Name))
		hal.SetGlobalHAL(rpiHAL)
		return
	}
	log.Info("non-ARM linux platform detected, using fake HAL")
	hal.SetGlobalHAL(fakehal.New())
}
