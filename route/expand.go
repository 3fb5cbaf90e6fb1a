package route

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

var envVarPattern = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict replaces ${VAR} references in s with their values from the
// environment. $$ emits a literal $; any other $ is left alone, so regular
// expressions survive expansion. A reference to an unset variable is an error
// naming every missing variable.
func ExpandEnvStrict(s string) (string, error) {
	return expandStrict(s, os.LookupEnv)
}

func expandStrict(s string, lookup func(string) (string, bool)) (string, error) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		if m == "$$" {
			return "$"
		}
		key := m[2 : len(m)-1]
		v, ok := lookup(key)
		if !ok {
			missing = append(missing, key)
		}
		return v
	})
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(slices.Compact(missing), ", "))
	}
	return out, nil
}
