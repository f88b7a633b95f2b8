// Package task turns a TaskDef into resolved TaskRequirements and renders
// the two substitution grammars used along the way: path patterns for
// rule-declared output paths, and command-line substitution when a
// provider's argv is built from bound outfiles and infiles (spec §4.5).
package task
