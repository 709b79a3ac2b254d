// Package config loads the evq configuration file.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// envRef matches ${NAME}, ${NAME:-default} and ${NAME:?message}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::([-?])([^}]*))?\}`)

// ExpandEnv substitutes environment references in a config document:
//
//	${NAME}           value of NAME, empty when unset
//	${NAME:-default}  default when NAME is unset or empty
//	${NAME:?message}  error when NAME is unset or empty
//
// Every missing required variable is reported in one error.
func ExpandEnv(doc string) (string, error) {
	var missing []string
	out := envRef.ReplaceAllStringFunc(doc, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		name, op, arg := m[1], m[2], m[3]
		if v := os.Getenv(name); v != "" {
			return v
		}
		switch op {
		case "-":
			return arg
		case "?":
			if arg == "" {
				arg = "not set"
			}
			missing = append(missing, name+": "+arg)
		}
		return ""
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("required environment variables missing: %s", strings.Join(missing, "; "))
	}
	return out, nil
}
