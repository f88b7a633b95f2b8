package types

import "time"

// Locality expresses how strongly a task input or output prefers to sit on
// a particular volume or host (spec §3, Task Requirements).
type Locality string

const (
	LocalityMust     Locality = "Must"
	LocalityPrefer   Locality = "Prefer"
	LocalityDontCare Locality = "DontCare"
)

// AnyTmpVolume is the sentinel output volume meaning "pick any suitable
// scratch volume at activation time" (spec §3, §4.3).
const AnyTmpVolume = "*anytmp*"

// TaskDefInput is one declared input of a task definition, before
// TaskRequirements resolution.
type TaskDefInput struct {
	Path string `json:"path"`
}

// TaskDefOutput is one declared output of a task definition, before
// TaskRequirements resolution.
type TaskDefOutput struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// TaskDef is the declarative description of a unit of work: its inputs,
// outputs (with size estimates), and the command-line templates that will
// be substituted and executed by the provider.
type TaskDef struct {
	Inputs   []TaskDefInput  `json:"inputs"`
	Outputs  []TaskDefOutput `json:"outputs"`
	Commands [][]string      `json:"commands"`
}

// CPUConstraint bounds how many CPUs a task may be granted.
type CPUConstraint struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// RequirementsInput is a resolved input: its volume/host and locality
// preference.
type RequirementsInput struct {
	Volume   string   `json:"volume"`
	Host     string   `json:"host"`
	Locality Locality `json:"locality"`
}

// RequirementsOutput is a resolved output: its (possibly sentinel) volume,
// host, path, size estimate, locality preference, and per-input
// "different volume" preferences (indexed the same as Requirements.Inputs).
type RequirementsOutput struct {
	Volume           string     `json:"volume"`
	Host             string     `json:"host"`
	Path             string     `json:"path"`
	Size             int64      `json:"size"`
	Locality         Locality   `json:"locality"`
	DifferentVolumes []Locality `json:"different_volumes"`
}

// TaskRequirements is derived from a TaskDef's inputs/outputs plus the
// user-configured task rules (spec §3, §4.5).
type TaskRequirements struct {
	Inputs  []RequirementsInput  `json:"inputs"`
	Outputs []RequirementsOutput `json:"outputs"`
	CPU     CPUConstraint        `json:"cpu"`

	RequiredVolumeHosts map[string]bool `json:"required_volume_hosts"`
	RequiredBuildHost   string          `json:"required_build_host,omitempty"`
	PreferredBuildHost  string          `json:"preferred_build_host,omitempty"`
}

// Task is a live instance of work dispatched for exactly one version
// (spec §3).
type Task struct {
	Verref   string   `json:"verref"`
	TaskID   uint32   `json:"taskid"`
	Priority int32    `json:"priority"`
	TaskDef  TaskDef  `json:"taskdef"`

	Requirements TaskRequirements `json:"requirements"`

	SubmitTime   time.Time `json:"submit_time"`
	BeginTime    time.Time `json:"begin_time,omitempty"`
	ProgressTime time.Time `json:"progress_time,omitempty"`
	Progress     float64   `json:"progress"`

	// ActivationError records the most recent reason activation failed
	// for this task (see SPEC_FULL.md, Supplemented Features #1). It is
	// kept on the resource manager's task only; GetCurrTasks returns asset
	// versions and does not report it.
	ActivationError string `json:"activation_error,omitempty"`

	// JobHost is set once the task has been bound to a provider.
	JobHost string `json:"job_host,omitempty"`

	BoundOutfiles []string `json:"bound_outfiles,omitempty"`
}

// QueueKey is the ordered comparison key for the waiting queue (spec §4.3:
// "priority, submitTime, taskid, verref, identity").
type QueueKey struct {
	Priority   int32
	SubmitTime time.Time
	TaskID     uint32
	Verref     string
}

// Less implements the strict total order used by the waiting queue: lower
// Priority value sorts and activates first, matching the original
// task_less comparator's ascending ordering.
func (k QueueKey) Less(other QueueKey) bool {
	if k.Priority != other.Priority {
		return k.Priority < other.Priority
	}
	if !k.SubmitTime.Equal(other.SubmitTime) {
		return k.SubmitTime.Before(other.SubmitTime)
	}
	if k.TaskID != other.TaskID {
		return k.TaskID < other.TaskID
	}
	return k.Verref < other.Verref
}
