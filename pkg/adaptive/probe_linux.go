package adaptive

import "golang.org/x/sys/unix"

// availableMemory reads free memory from sysinfo, 0 on failure.
func availableMemory() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return uint64(info.Freeram) * uint64(info.Unit)
}

// availableStorage reads free bytes on the working directory's filesystem,
// 0 on failure.
func availableStorage() uint64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(".", &stat); err != nil {
		return 0
	}
	return uint64(stat.Bavail) * uint64(stat.Bsize)
}
