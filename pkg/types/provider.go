package types

// ProviderConnect is the notify payload a provider agent sends immediately
// after connecting (spec §4.4, §6).
type ProviderConnect struct {
	Host          string `json:"host"`
	NumCPUs       int    `json:"num_cpus"`
	FusionVersion string `json:"fusion_version"`
}

// JobProgress is a provider -> resource manager progress notification.
type JobProgress struct {
	JobID        uint32  `json:"jobid"`
	BeginTime    int64   `json:"begin_time"`
	ProgressTime int64   `json:"progress_time"`
	Progress     float64 `json:"progress"`
}

// JobDone is a provider -> resource manager completion notification.
type JobDone struct {
	JobID     uint32 `json:"jobid"`
	Success   bool   `json:"success"`
	BeginTime int64  `json:"begin_time"`
	EndTime   int64  `json:"end_time"`
}

// VolumeAvail is a provider -> resource manager free-space report.
type VolumeAvail struct {
	VolName string `json:"volname"`
	Serial  uint32 `json:"serial"`
	Avail   int64  `json:"avail"`
}

// StartJob is a resource manager -> provider request to begin a task.
type StartJob struct {
	TaskID   uint32     `json:"taskid"`
	LogFile  string     `json:"log_file"`
	Commands [][]string `json:"commands"`
}

// StopJob is a resource manager -> provider request to cancel a task.
type StopJob struct {
	JobID uint32 `json:"jobid"`
}

// ChangeVolumeReservations is a resource manager -> provider request
// pushing the full current reservation map for one volume.
type ChangeVolumeReservations struct {
	VolName      string           `json:"volname"`
	Serial       uint32           `json:"serial"`
	Reservations map[string]int64 `json:"reservations"`
}

// CleanupVolume is a resource manager -> provider request to reclaim
// orphaned files on a volume after an abandoned reservation.
type CleanupVolume struct {
	VolName      string           `json:"volname"`
	Serial       uint32           `json:"serial"`
	Reservations map[string]int64 `json:"reservations"`
}

// CleanPath is a resource manager -> provider request to remove a single
// local path.
type CleanPath struct {
	LocalPath string `json:"local_path"`
}
