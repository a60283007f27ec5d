//go:build !darwin && !windows && !linux

package clip

// New returns an in-memory backend on platforms without clipboard support.
func New() Backend { return NewMemory() }
