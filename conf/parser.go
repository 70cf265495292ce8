package conf

import (
	"bufio"
	"fmt"
	"strings"
)

// ParseError reports a malformed line in a configuration document.
type ParseError struct {
	Line int
	Text string
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Msg, e.Text)
}

// Parse reads a corosync format document into a section tree. Blank lines and
// '#' comment lines are skipped and do not survive re-serialization;
// everything else must be an attribute line, a section opener or a closing
// brace. Rendering the result yields the document's canonical form, which
// then round-trips byte for byte.
func Parse(text string) (*Section, error) {
	root := NewRoot()
	stack := []*Section{root}

	scanner := bufio.NewScanner(strings.NewReader(text))
	lineno := 0
	for scanner.Scan() {
		lineno++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		current := stack[len(stack)-1]
		switch {
		case line == "}":
			if len(stack) == 1 {
				return nil, &ParseError{Line: lineno, Text: raw, Msg: "unexpected closing brace"}
			}
			stack = stack[:len(stack)-1]

		case strings.HasSuffix(line, "{"):
			name := strings.TrimSpace(strings.TrimSuffix(line, "{"))
			if name == "" {
				return nil, &ParseError{Line: lineno, Text: raw, Msg: "section name missing"}
			}
			child := NewSection(name)
			current.AddSection(child)
			stack = append(stack, child)

		case strings.Contains(line, ":"):
			parts := strings.SplitN(line, ":", 2)
			current.AddAttribute(strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))

		default:
			return nil, &ParseError{Line: lineno, Text: raw, Msg: "unparsable line"}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(stack) != 1 {
		return nil, &ParseError{Line: lineno, Text: "", Msg: "unclosed section"}
	}
	return root, nil
}
