package cfg

import (
	"fmt"
	"slices"
)

var validClusterSizes = []int32{32, 64, 128, 256, 512, 1024, 2048, 4096}

// maxVolumeBytes is the 1 GiB cap spec.md §6 places on a volume.
const maxVolumeBytes = 1 << 30

var validSeverities = []string{"TRACE", "DEBUG", "INFO", "WARNING", "ERROR", "OFF"}

// Validate rejects a Config that would violate one of spec.md's on-disk
// layout constraints before it ever reaches the cluster layer.
func (c Config) Validate() error {
	if !slices.Contains(validClusterSizes, c.Volume.ClusterSize) {
		return fmt.Errorf("cluster-size %d is not a power of two in [32, 4096]", c.Volume.ClusterSize)
	}
	if c.Volume.ClusterCount <= 0 {
		return fmt.Errorf("cluster-count must be positive, got %d", c.Volume.ClusterCount)
	}
	if int64(c.Volume.ClusterSize)*int64(c.Volume.ClusterCount) > maxVolumeBytes {
		return fmt.Errorf("cluster-size * cluster-count exceeds the %d byte volume cap", maxVolumeBytes)
	}
	if c.Volume.ExpandClusterCount <= 0 {
		return fmt.Errorf("expand-cluster-count must be positive, got %d", c.Volume.ExpandClusterCount)
	}
	if c.Cache.ClusterCount < 0 {
		return fmt.Errorf("cache-cluster-count must be non-negative, got %d", c.Cache.ClusterCount)
	}
	if !slices.Contains(validSeverities, c.Logging.Severity) {
		return fmt.Errorf("unknown log severity %q", c.Logging.Severity)
	}
	return nil
}
