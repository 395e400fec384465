package types

import (
	"math"
	"time"
)

const bytesPerGiB = 1 << 30

// ObjectInfo represents metadata about an object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// Stats is the aggregate of every object under a prefix.
type Stats struct {
	Prefix     string `json:"prefix"`
	Objects    int64  `json:"objects"`
	TotalBytes int64  `json:"total_bytes"`
}

// Summarize folds a listing into Stats.
func Summarize(prefix string, objects []ObjectInfo) Stats {
	stats := Stats{Prefix: prefix}
	for _, obj := range objects {
		stats.Objects++
		stats.TotalBytes += obj.Size
	}
	return stats
}

// StorageInfo summarizes a whole volume.
type StorageInfo struct {
	Datacenter     string  `json:"datacenter"`
	VolumeID       string  `json:"network_volume_id"`
	Endpoint       string  `json:"endpoint_url"`
	TotalFiles     int64   `json:"total_files"`
	TotalSizeBytes int64   `json:"total_size_bytes"`
	TotalSizeGB    float64 `json:"total_size_gb"`
}

// NewStorageInfo builds a StorageInfo from volume stats. TotalSizeGB is in
// GiB rounded to two decimals.
func NewStorageInfo(datacenter, volumeID, endpoint string, stats Stats) StorageInfo {
	return StorageInfo{
		Datacenter:     datacenter,
		VolumeID:       volumeID,
		Endpoint:       endpoint,
		TotalFiles:     stats.Objects,
		TotalSizeBytes: stats.TotalBytes,
		TotalSizeGB:    math.Round(float64(stats.TotalBytes)/bytesPerGiB*100) / 100,
	}
}

// TransferReport is the outcome of a directory transfer.
type TransferReport struct {
	Uploaded    int      `json:"uploaded"`
	Failed      int      `json:"failed"`
	Bytes       int64    `json:"bytes"`
	FailedFiles []string `json:"failed_files,omitempty"`
}
