package manifest

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// File is the scanned content of one manifest file.
type File struct {
	Classes      []*Class
	DefinedTypes []*DefinedType
	TypeAliases  []*TypeAlias
	Nodes        []*NodeDefinition
}

var aliasSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type", Required: true},
	},
}

// Scan extracts definitions from a parsed manifest file. Definition bodies
// are not evaluated here; scanning only shapes the top level. The scanner
// works on the native syntax body because node blocks take a variable number
// of hostname labels, which hcl.BodySchema cannot express.
func Scan(file *hcl.File) (*File, error) {
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("manifest files must use HCL native syntax")
	}

	for name, attr := range body.Attributes {
		return nil, fmt.Errorf("%s: unexpected attribute %q: only class, define, type, and node blocks may appear at the top level", attr.SrcRange, name)
	}

	out := &File{}
	for _, block := range body.Blocks {
		switch block.Type {
		case "class":
			if err := requireLabels(block, 1); err != nil {
				return nil, err
			}
			out.Classes = append(out.Classes, &Class{
				Name:      block.Labels[0],
				Body:      block.Body,
				DeclRange: block.DefRange(),
			})

		case "define":
			if err := requireLabels(block, 1); err != nil {
				return nil, err
			}
			out.DefinedTypes = append(out.DefinedTypes, &DefinedType{
				Name:      block.Labels[0],
				Body:      block.Body,
				DeclRange: block.DefRange(),
			})

		case "type":
			if err := requireLabels(block, 1); err != nil {
				return nil, err
			}
			aliasContent, diags := block.Body.Content(aliasSchema)
			if diags.HasErrors() {
				return nil, diags
			}
			out.TypeAliases = append(out.TypeAliases, &TypeAlias{
				Name:      block.Labels[0],
				Expr:      aliasContent.Attributes["type"].Expr,
				DeclRange: block.DefRange(),
			})

		case "node":
			if len(block.Labels) == 0 {
				return nil, fmt.Errorf("%s: node definitions require at least one hostname", block.DefRange())
			}
			node := &NodeDefinition{Body: block.Body, DeclRange: block.DefRange()}
			for i, label := range block.Labels {
				rng := block.DefRange()
				if i < len(block.LabelRanges) {
					rng = block.LabelRanges[i]
				}
				node.Hostnames = append(node.Hostnames, ParseHostname(label, rng))
			}
			out.Nodes = append(out.Nodes, node)

		default:
			return nil, fmt.Errorf("%s: unexpected block type %q", block.DefRange(), block.Type)
		}
	}
	return out, nil
}

func requireLabels(block *hclsyntax.Block, count int) error {
	if len(block.Labels) != count {
		return fmt.Errorf("%s: %s blocks require exactly %d label(s)", block.DefRange(), block.Type, count)
	}
	return nil
}
