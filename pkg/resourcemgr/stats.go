package resourcemgr

// ProviderStats is a point-in-time snapshot of one provider's load, for
// metrics collection.
type ProviderStats struct {
	Host        string
	ActiveTasks int
	UsedCPUs    int
	NumCPUs     int
}

// VolumeStats is a point-in-time snapshot of one volume's free space.
type VolumeStats struct {
	Name  string
	Avail int64
}

// Stats returns the waiting-queue depth and a snapshot of every connected
// provider and tracked volume, for the metrics collector (spec §9,
// observability is ambient and carried regardless of spec.md's Non-goals).
func (m *Manager) Stats() (waitingDepth int, providers []ProviderStats, volumes []VolumeStats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	waitingDepth = m.waiting.len()

	for host, p := range m.providers {
		providers = append(providers, ProviderStats{
			Host:        host,
			ActiveTasks: len(p.active),
			UsedCPUs:    p.UsedCPUs,
			NumCPUs:     p.NumCPUs,
		})
	}
	for name, v := range m.volumes {
		volumes = append(volumes, VolumeStats{Name: name, Avail: v.Avail - v.totalReserved()})
	}
	return waitingDepth, providers, volumes
}
