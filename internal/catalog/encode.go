package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Document is the wire form of a compiled catalog. Only concrete resources
// appear; virtual and exported resources that were never realized are not
// part of the node's configuration.
type Document struct {
	Name      string             `json:"name"`
	Resources []ResourceDocument `json:"resources"`
	Edges     []EdgeDocument     `json:"edges"`
}

// ResourceDocument is one resource in the wire form.
type ResourceDocument struct {
	Type       string                     `json:"type"`
	Title      string                     `json:"title"`
	File       string                     `json:"file,omitempty"`
	Line       int                        `json:"line,omitempty"`
	Exported   bool                       `json:"exported,omitempty"`
	Parameters map[string]json.RawMessage `json:"parameters,omitempty"`
}

// EdgeDocument is one relationship in the wire form.
type EdgeDocument struct {
	Kind   RelationshipKind `json:"kind"`
	Source string           `json:"source"`
	Target string           `json:"target"`
}

// Document projects the catalog into its wire form. Attribute values are
// encoded as JSON with dynamic typing so heterogeneous collections survive
// the round trip.
func (c *Catalog) Document() (*Document, error) {
	doc := &Document{Name: c.node, Resources: []ResourceDocument{}, Edges: []EdgeDocument{}}

	for _, res := range c.order {
		if res.Virtual() {
			continue
		}

		rd := ResourceDocument{
			Type:  res.ref.Type,
			Title: res.ref.Title,
			File:  res.declRange.Filename,
			Line:  res.declRange.Start.Line,
		}
		var encodeErr error
		res.EachAttribute(func(attr *Attribute) bool {
			raw, err := ctyjson.Marshal(attr.Value, cty.DynamicPseudoType)
			if err != nil {
				encodeErr = fmt.Errorf("failed to encode attribute '%s' of %s: %w", attr.Name, res.ref, err)
				return false
			}
			if rd.Parameters == nil {
				rd.Parameters = make(map[string]json.RawMessage)
			}
			rd.Parameters[attr.Name] = raw
			return true
		})
		if encodeErr != nil {
			return nil, encodeErr
		}
		doc.Resources = append(doc.Resources, rd)
	}

	for _, edge := range c.edges {
		if edge.Source.Virtual() || edge.Target.Virtual() {
			continue
		}
		doc.Edges = append(doc.Edges, EdgeDocument{
			Kind:   edge.Kind,
			Source: edge.Source.ref.String(),
			Target: edge.Target.ref.String(),
		})
	}
	return doc, nil
}

// Encode renders the catalog's wire form as indented JSON.
func (c *Catalog) Encode() ([]byte, error) {
	doc, err := c.Document()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}
