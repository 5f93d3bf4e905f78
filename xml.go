package nextcloud

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// XMLNode is a generic parse of a DAV response document. Namespaces are
// deliberately ignored: the server mixes DAV:, owncloud and nextcloud
// namespaces over disjoint element names, so the local name is enough.
type XMLNode struct {
	XMLName xml.Name
	Nodes   []XMLNode `xml:",any"`
	Text    string    `xml:",chardata"`
}

// ParseXML parses a DAV document into an XMLNode tree.
func ParseXML(data []byte) (*XMLNode, error) {
	var root XMLNode
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("nextcloud: parse xml: %w", err)
	}
	return &root, nil
}

// Local returns the element's local name.
func (n *XMLNode) Local() string { return n.XMLName.Local }

// Child returns the first direct child with the given local name.
func (n *XMLNode) Child(local string) *XMLNode {
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == local {
			return &n.Nodes[i]
		}
	}
	return nil
}

// Children returns all direct children with the given local name.
func (n *XMLNode) Children(local string) []*XMLNode {
	var out []*XMLNode
	for i := range n.Nodes {
		if n.Nodes[i].XMLName.Local == local {
			out = append(out, &n.Nodes[i])
		}
	}
	return out
}

// Flatten promotes every leaf element in the subtree into a flat map keyed
// by local name, which is how multistatus property blocks become decodable
// payloads. Later leaves win on duplicate names. Empty container elements
// (a childless element with no text, like <collection/>) appear with an
// empty value so their presence is observable.
func (n *XMLNode) Flatten() map[string]any {
	out := map[string]any{}
	for i := range n.Nodes {
		n.Nodes[i].flattenInto(out)
	}
	return out
}

func (n *XMLNode) flattenInto(out map[string]any) {
	if len(n.Nodes) == 0 {
		out[n.XMLName.Local] = strings.TrimSpace(n.Text)
		return
	}
	for i := range n.Nodes {
		n.Nodes[i].flattenInto(out)
	}
}
