// Package flagx lets several components parse their own flags from the same
// command line without tripping over each other's.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// ConfigEnvVar names the environment variable consulted for the JSON config
// path when neither -c nor -config is given.
const ConfigEnvVar = "GOPHDRIVE_CONFIG"

// FilterArgs keeps only the allowed flags and their values. A flag's value is
// either joined with "=" (--config=conf.json) or the next argument, as long as
// that one does not start with "-". Names in allowedFlags carry their dashes.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]bool, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = false
	}
	return filter(args, allowed)
}

// allowed maps a dashed flag name to whether it is boolean (takes no
// separate value).
func filter(args []string, allowed map[string]bool) []string {
	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, known := allowed[name]; known {
				filtered = append(filtered, arg)
			}
			continue
		}

		isBool, known := allowed[arg]
		if !known {
			continue
		}
		filtered = append(filtered, arg)
		if !isBool && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// Parse parses into fs only the arguments naming flags defined on fs, in
// either "-name" or "--name" form. Boolean flags never consume the next
// argument; give them an explicit value as -name=false.
func Parse(fs *flag.FlagSet, args []string) error {
	allowed := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		b, ok := f.Value.(interface{ IsBoolFlag() bool })
		isBool := ok && b.IsBoolFlag()
		allowed["-"+f.Name] = isBool
		allowed["--"+f.Name] = isBool
	})
	return fs.Parse(filter(args, allowed))
}

// ConfigPath returns the JSON config path given with -c or -config, falling
// back to $GOPHDRIVE_CONFIG. Empty means no file.
func ConfigPath() string {
	var config string

	fs := flag.NewFlagSet("json", flag.ContinueOnError)
	fs.StringVar(&config, "config", "", "Path to config file")
	fs.StringVar(&config, "c", "", "Path to config file (short)")
	_ = Parse(fs, os.Args[1:])

	if config == "" {
		config = os.Getenv(ConfigEnvVar)
	}

	return config
}
