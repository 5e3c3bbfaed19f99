package splitmerge

import (
	"strings"

	"github.com/peddyhh/ODM/internal/config"
)

// droppedFlags are parent options a submodel run must not inherit.
var droppedFlags = map[string]bool{
	"split":         true,
	"split-overlap": true,
	"rerun":         true,
	"rerun-all":     true,
	"rerun-from":    true,
	"project-path":  true,
}

// SubmodelArgv derives the arguments of a recursive run for one submodel
// from the parent's arguments (without the program name). Split, rerun and
// project-path options are dropped along with positional arguments, then
// the run is pointed at submodelsPath and name.
func SubmodelArgv(args []string, submodelsPath, name string) []string {
	var out []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			continue
		}

		flagName := strings.TrimLeft(arg, "-")
		inline := false
		if eq := strings.IndexByte(flagName, '='); eq >= 0 {
			flagName = flagName[:eq]
			inline = true
		}

		takesValue := false
		if !inline && i+1 < len(args) {
			isBool, known := config.IsBoolFlag(flagName)
			takesValue = known && !isBool
		}

		if droppedFlags[flagName] {
			if takesValue {
				i++
			}
			continue
		}
		out = append(out, arg)
		if takesValue {
			i++
			out = append(out, args[i])
		}
	}
	return append(out, "--project-path", submodelsPath, name)
}
