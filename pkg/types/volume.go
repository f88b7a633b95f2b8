package types

// Volume is a named managed filesystem mount on a specific host
// (spec §3).
type Volume struct {
	Name      string `yaml:"name" xml:"name,attr"`
	Host      string `yaml:"host" xml:"host,attr"`
	NetPath   string `yaml:"netpath" xml:"netpath,attr"`
	LocalPath string `yaml:"localpath" xml:"localpath,attr"`
	IsTmp     bool   `yaml:"is_tmp" xml:"is_tmp,attr"`
}

// VolumeRuntime is the per-live-provider runtime state of a volume:
// reservation bookkeeping and the last free-space report (spec §3).
type VolumeRuntime struct {
	Serial       uint32           `json:"serial"`
	Avail        int64            `json:"avail"`
	Reservations map[string]int64 `json:"reservations"` // path -> bytes
}

// NewVolumeRuntime returns a zeroed runtime state ready for use.
func NewVolumeRuntime() *VolumeRuntime {
	return &VolumeRuntime{Reservations: make(map[string]int64)}
}

// TotalReserved sums all outstanding reservations on this volume.
func (v *VolumeRuntime) TotalReserved() int64 {
	var total int64
	for _, n := range v.Reservations {
		total += n
	}
	return total
}
