// Package frontmatter splits a leading `---` delimited YAML block from a
// Markdown document and decodes it into a mapping.
package frontmatter

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document started with a YAML
// frontmatter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("yaml frontmatter start delimiter found but closing delimiter is missing")

// ErrNotMapping indicates the frontmatter block parsed as YAML but is not a key-value mapping.
var ErrNotMapping = errors.New("yaml frontmatter is not a mapping")

// Split separates YAML frontmatter (`---` delimited) from the Markdown body.
//
// The block must start at the very first byte and hold at least one
// character. The frontmatter is the shortest such run up to the first closing
// `---` line; everything after that line is the body. A closing delimiter
// must end with a newline. If the document does not start with a delimiter,
// had is false and body is the full input.
func Split(content string) (frontmatter string, body string, had bool, err error) {
	nl := detectNewline(content)
	open := "---" + nl
	if !strings.HasPrefix(content, open) {
		return "", content, false, nil
	}

	rest := content[len(open):]
	closeSeq := nl + "---" + nl
	if rest == "" {
		return "", "", false, ErrMissingClosingDelimiter
	}
	idx := strings.Index(rest[1:], closeSeq)
	if idx < 0 {
		return "", "", false, ErrMissingClosingDelimiter
	}
	idx++

	return rest[:idx+len(nl)], rest[idx+len(closeSeq):], true, nil
}

// ParseYAML parses raw YAML frontmatter (without --- delimiters) into a map.
//
// An empty or null document yields an empty map. Sequences and scalars are
// rejected with ErrNotMapping.
func ParseYAML(frontmatter string) (map[string]any, error) {
	if strings.TrimSpace(frontmatter) == "" {
		return map[string]any{}, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(frontmatter), &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return map[string]any{}, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.ScalarNode && root.Tag == "!!null" {
		return map[string]any{}, nil
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: got %s", ErrNotMapping, kindName(root.Kind))
	}

	fields := map[string]any{}
	if err := root.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Extract splits and parses in one step.
//
// had is false when the document carries no frontmatter block; in that case
// fields is nil and body is the input unchanged.
func Extract(content string) (fields map[string]any, body string, had bool, err error) {
	raw, body, had, err := Split(content)
	if err != nil || !had {
		return nil, body, had, err
	}

	fields, err = ParseYAML(raw)
	if err != nil {
		return nil, "", true, err
	}
	return fields, body, true, nil
}

func detectNewline(content string) string {
	if i := strings.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.SequenceNode:
		return "sequence"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}
