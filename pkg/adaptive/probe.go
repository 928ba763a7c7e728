package adaptive

import "runtime"

// Network classes reported by a probe.
const (
	NetworkUnknown = "unknown"
	NetworkFast    = "fast"
	NetworkSlow    = "slow"
)

// HostCapabilities are the best-effort signals a probe can gather. Zero
// values mean the signal was unavailable.
type HostCapabilities struct {
	MemoryBytes  uint64
	Cores        int
	StorageBytes uint64
	NetworkClass string
}

// HostProbe supplies capability signals to Tuner.Initialize. The library
// ships SystemProbe; embedders with better knowledge (browser-like quota
// APIs, container limits) can provide their own.
type HostProbe interface {
	Probe() (HostCapabilities, error)
}

// SystemProbe reads what the operating system exposes. Memory comes from
// sysinfo on Linux and is left at zero elsewhere; network class is always
// unknown because the library never touches the network itself.
type SystemProbe struct{}

// Probe implements HostProbe.
func (SystemProbe) Probe() (HostCapabilities, error) {
	caps := HostCapabilities{
		Cores:        runtime.NumCPU(),
		NetworkClass: NetworkUnknown,
	}
	caps.MemoryBytes = availableMemory()
	caps.StorageBytes = availableStorage()
	return caps, nil
}

// StaticProbe returns fixed capabilities. Intended for tests and for
// embedders that inject externally measured signals.
type StaticProbe struct {
	Capabilities HostCapabilities
	Err          error
}

// Probe implements HostProbe.
func (p StaticProbe) Probe() (HostCapabilities, error) {
	return p.Capabilities, p.Err
}
