package resourcemgr

import "github.com/cuemby/fusiond/pkg/metrics"

// HandleJobProgress applies a provider's JobProgress notify: updates the
// live task record and forwards progress to the asset manager (spec §4.4,
// "Provider-to-orchestrator messages").
func (m *Manager) HandleJobProgress(host string, taskID uint32, progress float64) {
	m.mu.Lock()
	p, ok := m.providers[host]
	if !ok {
		m.mu.Unlock()
		return
	}
	at, ok := p.active[taskID]
	if !ok {
		m.mu.Unlock()
		return
	}
	at.task.Progress = progress
	verref := at.task.Verref
	m.mu.Unlock()

	if m.notifier != nil {
		m.notifier.NotifyTaskProgress(verref, taskID, progress)
	}
}

// HandleJobDone applies a provider's JobDone notify: releases every
// reservation the task held, removes it from the provider's active map,
// and forwards completion to the asset manager, which owns the resulting
// version state transition (spec §4.3, "numActivateBlockers").
func (m *Manager) HandleJobDone(host string, taskID uint32, success bool) {
	m.mu.Lock()
	p, ok := m.providers[host]
	if !ok {
		m.mu.Unlock()
		return
	}
	at, ok := p.active[taskID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(p.active, taskID)
	verref := at.task.Verref
	m.mu.Unlock()

	for _, r := range at.reservations {
		r.Release()
	}

	result := "success"
	if !success {
		result = "failure"
	}
	metrics.TasksDoneTotal.WithLabelValues(result).Inc()

	if m.notifier != nil {
		m.notifier.NotifyTaskDone(verref, taskID, success)
	}
}
