package admin

import (
	"strings"
)

// legacyFlags maps the single-letter colon options accepted by older repair
// tooling (-l:<path>) to long flag names.
var legacyFlags = map[string]string{
	"l": "container",
	"g": "container-id",
	"s": "stream",
	"r": "truncate-to",
	"f": "filter",
}

// NormalizeArgs rewrites -x:value arguments into --long=value. Anything else
// passes through untouched.
func NormalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if len(a) >= 3 && a[0] == '-' && a[2] == ':' {
			if long, ok := legacyFlags[strings.ToLower(a[1:2])]; ok {
				out = append(out, "--"+long+"="+a[3:])
				continue
			}
		}
		out = append(out, a)
	}
	return out
}
