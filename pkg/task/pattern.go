package task

import (
	"fmt"
	"path/filepath"
	"strings"
)

// pathQualifier transforms a substituted value before it lands in the
// final path (spec §4.5: ":basename", ":dirname", ":sansext", ":ext").
type pathQualifier func(string) string

func sansExt(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p))
}

func extOf(p string) string {
	e := filepath.Ext(p)
	return strings.TrimPrefix(e, ".")
}

var pathQualifiers = map[string]pathQualifier{
	"basename": filepath.Base,
	"dirname":  filepath.Dir,
	"sansext":  sansExt,
	"ext":      extOf,
}

// PatternTool renders $taskid/$defaultpath/$vernum/$assetref path
// patterns for one task, each optionally qualified with :basename,
// :dirname, :sansext or :ext.
type PatternTool struct {
	taskID      string
	defaultPath string
	vernum      string
	assetRef    string
}

// NewPatternTool builds the substitution context for one task construction.
// version is the numeric version id; it is rendered zero-padded to 3
// digits to match the original system's vernum format.
func NewPatternTool(taskID uint32, defaultPath string, version int, assetName string) *PatternTool {
	return &PatternTool{
		taskID:      fmt.Sprintf("%d", taskID),
		defaultPath: defaultPath,
		vernum:      fmt.Sprintf("%03d", version),
		assetRef:    assetName,
	}
}

var patternVars = []string{"taskid", "defaultpath", "vernum", "assetref"}

// varsubst replaces every occurrence of "$"+name (optionally qualified
// with ":qualifier") in pattern with value, applying the qualifier
// transform when present.
func varsubst(pattern, name, value string, qualifiers map[string]pathQualifier) string {
	token := "$" + name
	var b strings.Builder
	rest := pattern
	for {
		idx := strings.Index(rest, token)
		if idx < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:idx])
		rest = rest[idx+len(token):]

		v := value
		if qualifiers != nil && strings.HasPrefix(rest, ":") {
			for qname, qfn := range qualifiers {
				qtoken := ":" + qname
				if strings.HasPrefix(rest, qtoken) {
					v = qfn(value)
					rest = rest[len(qtoken):]
					break
				}
			}
		}
		b.WriteString(v)
	}
	return b.String()
}

// VarSubst applies all four path-pattern variables to pattern in order:
// taskid, defaultpath, vernum, assetref. defaultpath and assetref accept
// qualifiers; taskid and vernum do not (matching the original, which never
// registers qualifiers for them).
func (pt *PatternTool) VarSubst(pattern string) string {
	out := pattern
	out = varsubst(out, "taskid", pt.taskID, nil)
	out = varsubst(out, "defaultpath", pt.defaultPath, pathQualifiers)
	out = varsubst(out, "vernum", pt.vernum, nil)
	out = varsubst(out, "assetref", pt.assetRef, pathQualifiers)
	return out
}
