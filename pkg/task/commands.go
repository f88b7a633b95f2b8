package task

import (
	"regexp"
	"strconv"
)

// cmdTokenRe matches one command-substitution token: a base name
// ($OUTPUT, $INPUT, $OUTPUTS, $INPUTS, $NUMCPU), an optional [n] index,
// and an optional :qualifier suffix.
var cmdTokenRe = regexp.MustCompile(`^\$(OUTPUT|INPUT|OUTPUTS|INPUTS|NUMCPU)(\[(\d+)\])?(:(basename|dirname|sansext|ext))?$`)

// BuildCommands renders every argument of every command template against
// the bound outfiles, input paths, and granted CPU count (spec §4.5). A
// single argument that expands to a list ($OUTPUTS, $INPUTS with no
// index) becomes multiple argv entries; everything else stays one
// argument. Arguments with no recognised token pass through verbatim,
// including any unrecognised "$" token.
func BuildCommands(templates [][]string, outfiles, infiles []string, numCPU int) [][]string {
	out := make([][]string, len(templates))
	for i, tmpl := range templates {
		var args []string
		for _, a := range tmpl {
			args = append(args, expandArg(a, outfiles, infiles, numCPU)...)
		}
		out[i] = args
	}
	return out
}

func expandArg(arg string, outfiles, infiles []string, numCPU int) []string {
	m := cmdTokenRe.FindStringSubmatch(arg)
	if m == nil {
		return []string{arg}
	}
	base, idxStr, qualifier := m[1], m[3], m[5]

	switch base {
	case "NUMCPU":
		return []string{qualify(strconv.Itoa(numCPU), qualifier)}
	case "OUTPUT":
		return []string{qualify(listElem(outfiles, 0), qualifier)}
	case "INPUT":
		return []string{qualify(listElem(infiles, 0), qualifier)}
	case "OUTPUTS":
		if idxStr != "" {
			n, _ := strconv.Atoi(idxStr)
			return []string{qualify(listElem(outfiles, n), qualifier)}
		}
		return qualifyAll(outfiles, qualifier)
	case "INPUTS":
		if idxStr != "" {
			n, _ := strconv.Atoi(idxStr)
			return []string{qualify(listElem(infiles, n), qualifier)}
		}
		return qualifyAll(infiles, qualifier)
	}
	return []string{arg}
}

func listElem(list []string, n int) string {
	if n < 0 || n >= len(list) {
		return ""
	}
	return list[n]
}

func qualify(v, qualifier string) string {
	if qualifier == "" {
		return v
	}
	if fn, ok := pathQualifiers[qualifier]; ok {
		return fn(v)
	}
	return v
}

func qualifyAll(list []string, qualifier string) []string {
	out := make([]string, len(list))
	for i, v := range list {
		out[i] = qualify(v, qualifier)
	}
	return out
}
