//go:build linux
// +build linux

// File: control/platform_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux-specific debug probes.

package control

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// RegisterPlatformProbes sets Linux-specific debug probes.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		return runtime.NumCPU()
	})
	dp.RegisterProbe("platform.open_files_limit", func() any {
		var lim unix.Rlimit
		if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
			return nil
		}
		return lim.Cur
	})
}
