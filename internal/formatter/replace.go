package formatter

import (
	"regexp"
	"strings"
)

// replaceAllSubmatch replaces every match of re in s with the result of fn,
// which receives the full match followed by its capture groups. The first
// error from fn aborts the replacement.
func replaceAllSubmatch(re *regexp.Regexp, s string, fn func(groups []string) (string, error)) (string, error) {
	matches := re.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		groups := make([]string, len(m)/2)
		for i := range groups {
			if m[2*i] >= 0 {
				groups[i] = s[m[2*i]:m[2*i+1]]
			}
		}

		replacement, err := fn(groups)
		if err != nil {
			return "", err
		}
		b.WriteString(s[last:m[0]])
		b.WriteString(replacement)
		last = m[1]
	}
	b.WriteString(s[last:])
	return b.String(), nil
}
