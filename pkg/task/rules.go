package task

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/fusiond/pkg/ferrors"
	"gopkg.in/yaml.v3"
)

// RuleSet is the loaded collection of task rules, keyed by rule name
// (either "<assetType><taskName>" or plain "<taskName>").
type RuleSet struct {
	rules map[string]Rule
}

// NewRuleSet returns an empty set.
func NewRuleSet() *RuleSet {
	return &RuleSet{rules: make(map[string]Rule)}
}

// LoadDir reads every *.taskrule file in dir. The rule's key is its
// filename stem; a rule's declared TaskName must match that stem or
// loading fails (mirrors the original system's fatal mismatch check).
func (rs *RuleSet) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			rs.rules = make(map[string]Rule)
			return nil
		}
		return ferrors.New(ferrors.KindFatal, "task.RuleSet.LoadDir", err)
	}

	loaded := make(map[string]Rule, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".taskrule") {
			continue
		}
		stem := strings.TrimSuffix(e.Name(), ".taskrule")
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return ferrors.Newf(ferrors.KindFatal, "task.RuleSet.LoadDir", "reading %s: %v", e.Name(), err)
		}
		var r Rule
		if err := yaml.Unmarshal(data, &r); err != nil {
			return ferrors.Newf(ferrors.KindFatal, "task.RuleSet.LoadDir", "parsing %s: %v", e.Name(), err)
		}
		if r.TaskName != "" && r.TaskName != stem {
			return ferrors.Newf(ferrors.KindFatal, "task.RuleSet.LoadDir", "%s: task_name %q does not match filename", e.Name(), r.TaskName)
		}
		loaded[stem] = r
	}
	rs.rules = loaded
	return nil
}

// Lookup finds the rule for (assetType, taskName): first the specialized
// key "<assetType><taskName>", falling back to the plain taskName.
func (rs *RuleSet) Lookup(assetType, taskName string) (Rule, bool) {
	if r, ok := rs.rules[assetType+taskName]; ok {
		return r, true
	}
	r, ok := rs.rules[taskName]
	return r, ok
}
