// Package conf implements the corosync configuration file format as an
// ordered section/attribute tree. Attribute order, duplicate keys and section
// nesting are preserved, so a document already in the canonical layout
// re-serializes byte for byte. Rendering always produces the canonical
// layout: comment and blank lines are dropped, attributes print before
// nested blocks, and top-level blocks are separated by one blank line.
package conf

import "strings"

const indentUnit = "    "

// Attribute is a single key/value line inside a section.
type Attribute struct {
	Name  string
	Value string
}

// Section is a named block of attributes and nested sections. The root of a
// document is an unnamed section whose children render without braces.
type Section struct {
	name       string
	attributes []Attribute
	sections   []*Section
}

// NewRoot returns an empty unnamed root section.
func NewRoot() *Section {
	return &Section{}
}

// NewSection returns an empty section with the given name.
func NewSection(name string) *Section {
	return &Section{name: name}
}

// Name returns the section name, empty for the root.
func (s *Section) Name() string {
	return s.name
}

// AddAttribute appends a key/value pair. Duplicate keys are allowed and kept
// in insertion order.
func (s *Section) AddAttribute(name, value string) {
	s.attributes = append(s.attributes, Attribute{Name: name, Value: value})
}

// SetAttribute replaces the first attribute with the given name, removing any
// further duplicates, or appends it if absent.
func (s *Section) SetAttribute(name, value string) {
	kept := s.attributes[:0]
	replaced := false
	for _, attr := range s.attributes {
		if attr.Name != name {
			kept = append(kept, attr)
			continue
		}
		if !replaced {
			kept = append(kept, Attribute{Name: name, Value: value})
			replaced = true
		}
	}
	s.attributes = kept
	if !replaced {
		s.AddAttribute(name, value)
	}
}

// Attribute returns the value of the first attribute with the given name.
func (s *Section) Attribute(name string) (string, bool) {
	for _, attr := range s.attributes {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// Attributes returns all attributes in insertion order.
func (s *Section) Attributes() []Attribute {
	out := make([]Attribute, len(s.attributes))
	copy(out, s.attributes)
	return out
}

// RemoveAttribute deletes every attribute with the given name.
func (s *Section) RemoveAttribute(name string) {
	kept := s.attributes[:0]
	for _, attr := range s.attributes {
		if attr.Name != name {
			kept = append(kept, attr)
		}
	}
	s.attributes = kept
}

// AddSection appends a nested section.
func (s *Section) AddSection(child *Section) {
	s.sections = append(s.sections, child)
}

// Sections returns nested sections with the given name, or all nested
// sections when name is empty.
func (s *Section) Sections(name string) []*Section {
	if name == "" {
		out := make([]*Section, len(s.sections))
		copy(out, s.sections)
		return out
	}
	var out []*Section
	for _, child := range s.sections {
		if child.name == name {
			out = append(out, child)
		}
	}
	return out
}

// Section returns the first nested section with the given name.
func (s *Section) Section(name string) (*Section, bool) {
	for _, child := range s.sections {
		if child.name == name {
			return child, true
		}
	}
	return nil, false
}

// RemoveSection deletes the given nested section.
func (s *Section) RemoveSection(child *Section) bool {
	for i, c := range s.sections {
		if c == child {
			s.sections = append(s.sections[:i], s.sections[i+1:]...)
			return true
		}
	}
	return false
}

// String renders the section in the corosync format: attribute lines first,
// then nested blocks, with a blank line between top-level blocks. The root
// section renders its children at top level without braces.
func (s *Section) String() string {
	var b strings.Builder
	s.write(&b, 0)
	text := b.String()
	// exactly one trailing newline at document level
	return strings.TrimRight(text, "\n") + "\n"
}

func (s *Section) write(b *strings.Builder, depth int) {
	indent := strings.Repeat(indentUnit, depth)
	for _, attr := range s.attributes {
		b.WriteString(indent)
		b.WriteString(attr.Name)
		b.WriteString(": ")
		b.WriteString(attr.Value)
		b.WriteByte('\n')
	}
	for _, child := range s.sections {
		b.WriteString(indent)
		b.WriteString(child.name)
		b.WriteString(" {\n")
		child.write(b, depth+1)
		b.WriteString(indent)
		b.WriteString("}\n")
		if depth == 0 {
			b.WriteByte('\n')
		}
	}
}
