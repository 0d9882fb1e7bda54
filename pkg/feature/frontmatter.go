package feature

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const fence = "---"

// Document is a markdown file with an optional YAML frontmatter header.
// Editing a key keeps every other key, its order and its comments.
type Document struct {
	meta     *yaml.Node
	body     string
	hasFront bool
}

// ParseDocument splits content into frontmatter and body.
func ParseDocument(content string) (*Document, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	raw, body, ok := splitFrontmatter(content)

	doc := &Document{
		meta:     &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"},
		body:     body,
		hasFront: ok,
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return doc, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &root); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}
	if root.Kind == yaml.DocumentNode && len(root.Content) == 1 {
		if root.Content[0].Kind != yaml.MappingNode {
			return nil, fmt.Errorf("frontmatter must be a mapping")
		}
		doc.meta = root.Content[0]
	}
	return doc, nil
}

// splitFrontmatter returns the YAML between the opening and closing fences
// and everything after the closing fence.
func splitFrontmatter(content string) (raw, body string, ok bool) {
	if !strings.HasPrefix(content, fence+"\n") {
		return "", content, false
	}
	rest := content[len(fence)+1:]

	offset := 0
	for {
		line, tail, found := strings.Cut(rest[offset:], "\n")
		if line == fence {
			after := rest[offset+len(line):]
			return rest[:offset], after, true
		}
		if !found {
			return "", content, false
		}
		offset = len(rest) - len(tail)
	}
}

func (d *Document) lookup(key string) *yaml.Node {
	for i := 0; i+1 < len(d.meta.Content); i += 2 {
		if d.meta.Content[i].Value == key {
			return d.meta.Content[i+1]
		}
	}
	return nil
}

// HasFrontmatter reports whether the source had a header.
func (d *Document) HasFrontmatter() bool {
	return d.hasFront
}

// Keys returns the frontmatter keys in order.
func (d *Document) Keys() []string {
	keys := make([]string, 0, len(d.meta.Content)/2)
	for i := 0; i+1 < len(d.meta.Content); i += 2 {
		keys = append(keys, d.meta.Content[i].Value)
	}
	return keys
}

// String returns a scalar value, or "" when missing or not a scalar.
func (d *Document) String(key string) string {
	n := d.lookup(key)
	if n == nil || n.Kind != yaml.ScalarNode || n.Tag == "!!null" {
		return ""
	}
	return n.Value
}

// StringList returns a sequence value. A single scalar becomes a one-item list.
func (d *Document) StringList(key string) []string {
	n := d.lookup(key)
	if n == nil {
		return nil
	}
	switch n.Kind {
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind == yaml.ScalarNode && item.Value != "" {
				out = append(out, item.Value)
			}
		}
		return out
	case yaml.ScalarNode:
		if n.Value != "" && n.Tag != "!!null" {
			return []string{n.Value}
		}
	}
	return nil
}

// Set assigns a scalar string value, appending the key when new.
func (d *Document) Set(key, value string) {
	if n := d.lookup(key); n != nil {
		*n = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value, LineComment: n.LineComment}
		return
	}
	d.meta.Content = append(d.meta.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: value},
	)
}

// Body returns the markdown after the frontmatter.
func (d *Document) Body() string {
	return d.body
}

// SetBody replaces the markdown after the frontmatter.
func (d *Document) SetBody(body string) {
	d.body = body
}

// Render reassembles the document.
func (d *Document) Render() (string, error) {
	var header bytes.Buffer
	if len(d.meta.Content) > 0 {
		enc := yaml.NewEncoder(&header)
		enc.SetIndent(2)
		if err := enc.Encode(d.meta); err != nil {
			return "", fmt.Errorf("failed to encode frontmatter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return "", fmt.Errorf("failed to encode frontmatter: %w", err)
		}
	}

	var out strings.Builder
	out.WriteString(fence + "\n")
	out.Write(header.Bytes())
	out.WriteString(fence)
	if !d.hasFront {
		out.WriteString("\n\n")
	}
	out.WriteString(d.body)
	return out.String(), nil
}
