package conf

import (
	"errors"
	"testing"
)

const sampleDoc = `totem {
    version: 2
    cluster_name: demo
    interface {
        ringnumber: 0
        bindnetaddr: 192.168.1.0
    }
}

nodelist {
    node {
        ring0_addr: node-a
        nodeid: 1
    }
    node {
        ring0_addr: node-b
        nodeid: 2
    }
}

quorum {
    provider: corosync_votequorum
}
`

func TestParseRoundTrip(t *testing.T) {
	root, err := Parse(sampleDoc)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got := root.String(); got != sampleDoc {
		t.Errorf("round trip mismatch:\ngot:\n%s\nwant:\n%s", got, sampleDoc)
	}
}

func TestParseSkipsCommentsAndBlanks(t *testing.T) {
	doc := `# leading comment

totem {
    # nested comment
    version: 2
}
`
	root, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	totem, ok := root.Section("totem")
	if !ok {
		t.Fatal("totem section missing")
	}
	if v, _ := totem.Attribute("version"); v != "2" {
		t.Errorf("version = %q, want 2", v)
	}
}

func TestParseCanonicalizesHandWrittenInput(t *testing.T) {
	doc := `# transport settings
totem {
    version: 2
    interface {
        ringnumber: 0
    }
    token: 3000
}
quorum {
    provider: corosync_votequorum
}
`
	want := `totem {
    version: 2
    token: 3000
    interface {
        ringnumber: 0
    }
}

quorum {
    provider: corosync_votequorum
}
`
	root, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	got := root.String()
	if got != want {
		t.Errorf("canonical form mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}

	// the canonical form is a fixed point
	again, err := Parse(got)
	if err != nil {
		t.Fatalf("Parse() error on canonical form: %v", err)
	}
	if again.String() != got {
		t.Errorf("canonical form unstable:\ngot:\n%s", again.String())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"stray closing brace", "}\n"},
		{"unnamed section", "{\n}\n"},
		{"unparsable line", "totem {\nnot an attribute\n}\n"},
		{"unclosed section", "totem {\nversion: 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.doc)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Errorf("Parse() error = %v, want *ParseError", err)
			}
		})
	}
}

func TestDuplicateAttributesPreserved(t *testing.T) {
	doc := `totem {
    token: 1000
    token: 2000
}
`
	root, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	totem, _ := root.Section("totem")
	attrs := totem.Attributes()
	if len(attrs) != 2 {
		t.Fatalf("got %d attributes, want 2", len(attrs))
	}
	if got := root.String(); got != doc {
		t.Errorf("duplicate keys not preserved:\ngot:\n%s", got)
	}
	// the first value wins on lookup
	if v, _ := totem.Attribute("token"); v != "1000" {
		t.Errorf("Attribute(token) = %q, want 1000", v)
	}
}

func TestSetAttribute(t *testing.T) {
	s := NewSection("totem")
	s.AddAttribute("token", "1000")
	s.AddAttribute("consensus", "1200")
	s.AddAttribute("token", "2000")

	s.SetAttribute("token", "3000")
	attrs := s.Attributes()
	if len(attrs) != 2 {
		t.Fatalf("got %d attributes after SetAttribute, want 2", len(attrs))
	}
	if attrs[0].Name != "token" || attrs[0].Value != "3000" {
		t.Errorf("first attribute = %+v, want token 3000", attrs[0])
	}

	s.SetAttribute("join", "50")
	if v, ok := s.Attribute("join"); !ok || v != "50" {
		t.Errorf("Attribute(join) = %q %v, want 50 true", v, ok)
	}
}

func TestRemoveAttributeAndSection(t *testing.T) {
	root, err := Parse(sampleDoc)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	nodelist, _ := root.Section("nodelist")
	nodes := nodelist.Sections("node")
	if len(nodes) != 2 {
		t.Fatalf("got %d node sections, want 2", len(nodes))
	}
	if !nodelist.RemoveSection(nodes[0]) {
		t.Fatal("RemoveSection returned false for an existing section")
	}
	nodes = nodelist.Sections("node")
	if len(nodes) != 1 {
		t.Fatalf("got %d node sections after removal, want 1", len(nodes))
	}
	if addr, _ := nodes[0].Attribute("ring0_addr"); addr != "node-b" {
		t.Errorf("remaining node = %q, want node-b", addr)
	}

	totem, _ := root.Section("totem")
	totem.RemoveAttribute("cluster_name")
	if _, ok := totem.Attribute("cluster_name"); ok {
		t.Error("cluster_name still present after RemoveAttribute")
	}
}

func TestSectionsAllChildren(t *testing.T) {
	root, err := Parse(sampleDoc)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if got := len(root.Sections("")); got != 3 {
		t.Errorf("got %d top level sections, want 3", got)
	}
}
