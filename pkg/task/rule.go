// Package task computes TaskRequirements from a TaskDef and the
// user-configured .taskrule overrides (spec §4.5), and performs the two
// substitution grammars the rest of the system depends on: path-pattern
// substitution for rule-declared output paths, and command-line
// substitution when a provider builds the argv for a task.
//
// Grounded on original_source/earth_enterprise's
// autoingest/sysman/TaskRequirements.{h,cpp} and khTask.cpp.
package task

import "github.com/cuemby/fusiond/pkg/types"

// Preference mirrors types.Locality under the name the original rule files
// use; kept as an alias so rule YAML can spell it either way without two
// parallel enums.
type Preference = types.Locality

const (
	Must     = types.LocalityMust
	Prefer   = types.LocalityPrefer
	DontCare = types.LocalityDontCare
)

// InputConstraint overrides one input's locality, or all inputs when Num
// is -1.
type InputConstraint struct {
	Num        int        `yaml:"num"`
	LocalToJob Preference `yaml:"local_to_job"`
}

// InputPref overrides one "different volume" entry for an output, or all
// entries when Num is -1.
type InputPref struct {
	Num  int        `yaml:"num"`
	Pref Preference `yaml:"pref"`
}

// OutputConstraint overrides one output's volume/path/locality.
type OutputConstraint struct {
	Num              int         `yaml:"num"`
	LocalToJob       Preference  `yaml:"local_to_job"`
	RequiredVolume   string      `yaml:"required_volume"`
	PathPattern      string      `yaml:"path_pattern"`
	DifferentVolumes []InputPref `yaml:"different_volumes"`
}

// CPUConstraint bounds the CPU count a matching task may be granted.
type CPUConstraint struct {
	MinNumCPU int `yaml:"min_num_cpu"`
	MaxNumCPU int `yaml:"max_num_cpu"`
}

// Rule is the parsed form of one <state>/.config/<name>.taskrule file.
type Rule struct {
	TaskName         string             `yaml:"task_name"`
	InputConstraints []InputConstraint  `yaml:"input_constraints"`
	OutputConstraints []OutputConstraint `yaml:"output_constraints"`
	CPUConstraint    CPUConstraint      `yaml:"cpu_constraint"`
}
