package host

import (
	"fmt"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// ProcResources reads disk usage with statfs and memory usage from procfs.
type ProcResources struct {
	// ProcRoot is the procfs mount. Default: /proc
	ProcRoot string
}

// DiskUsagePercent returns used space of the filesystem holding path, computed
// the way df does (used / (used + available to unprivileged users)).
func (ProcResources) DiskUsagePercent(path string) (int, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}
	bsize := uint64(st.Bsize)
	used := (uint64(st.Blocks) - uint64(st.Bfree)) * bsize
	avail := uint64(st.Bavail) * bsize
	return percentCeil(used, used+avail), nil
}

// MemoryUsagePercent returns (MemTotal - MemAvailable) / MemTotal.
func (p ProcResources) MemoryUsagePercent() (int, error) {
	root := p.ProcRoot
	if root == "" {
		root = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(root)
	if err != nil {
		return 0, fmt.Errorf("open procfs: %w", err)
	}
	mi, err := fs.Meminfo()
	if err != nil {
		return 0, fmt.Errorf("read meminfo: %w", err)
	}
	if mi.MemTotal == nil || mi.MemAvailable == nil || *mi.MemTotal == 0 {
		return 0, fmt.Errorf("meminfo missing MemTotal/MemAvailable")
	}
	total, avail := *mi.MemTotal, *mi.MemAvailable
	if avail > total {
		avail = total
	}
	return percentCeil(total-avail, total), nil
}

func percentCeil(part, whole uint64) int {
	if whole == 0 {
		return 0
	}
	return int((part*100 + whole - 1) / whole)
}
