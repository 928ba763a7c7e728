//go:build !linux

package adaptive

// Memory and storage probing is Linux-only; other platforms report the
// signals as unavailable and the tuner keeps its defaults.

func availableMemory() uint64 { return 0 }

func availableStorage() uint64 { return 0 }
