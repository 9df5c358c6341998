package internal

import (
	"regexp"
	"strings"
)

// maxHostNameLen is the longest hostname the container runtime accepts.
const maxHostNameLen = 63

// CondenseHostName shortens a container name that is too long to be used as
// its hostname, keeping the head and tail so service names stay recognisable.
// Longer names make container creation fail with "sethostname: invalid argument".
func CondenseHostName(name string) string {
	if len(name) <= maxHostNameLen {
		return name
	}
	// dots are kept on both sides of the separator so peers can still resolve it.
	return name[:30] + "_._" + name[len(name)-30:]
}

var invalidResourceCharsRE = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// SanitizeDockerResourceName replaces characters docker rejects in container
// and host names with underscores. Container names come from configuration,
// so they may contain anything.
func SanitizeDockerResourceName(name string) string {
	return invalidResourceCharsRE.ReplaceAllLiteralString(name, "_")
}

// ParseFlags indexes the "--flag" and "--flag=value" arguments of a node
// command by flag name. Bare flags map to "". Positional arguments and
// single-dash forms are ignored; the devnet only renders double-dash flags.
func ParseFlags(args []string) map[string]string {
	flags := make(map[string]string)
	for _, arg := range args {
		name, ok := strings.CutPrefix(arg, "--")
		if !ok || name == "" {
			continue
		}
		key, value, _ := strings.Cut(name, "=")
		flags[key] = value
	}
	return flags
}
