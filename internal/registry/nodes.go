package registry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vk/manifestc/internal/manifest"
)

type regexNode struct {
	pattern string
	re      *regexp.Regexp
	index   int
}

// RegisterNode registers a node definition. Definitions with a hostname set
// that conflicts with an already registered definition are rejected.
func (r *Registry) RegisterNode(node *manifest.NodeDefinition) error {
	if existing := r.findConflicting(node); existing != nil {
		return fmt.Errorf("%s: node definition conflicts with a previous definition at %s", node.DeclRange, existing.DeclRange)
	}

	// Compile all regexes before mutating any index so a bad pattern leaves
	// the registry untouched.
	var compiled []regexNode
	index := len(r.nodes)
	for _, hostname := range node.Hostnames {
		if !hostname.Regex {
			continue
		}
		re, err := regexp.Compile(hostname.Pattern())
		if err != nil {
			return fmt.Errorf("%s: invalid regular expression: %v", hostname.DeclRange, err)
		}
		compiled = append(compiled, regexNode{pattern: hostname.Pattern(), re: re, index: index})
	}

	r.nodes = append(r.nodes, node)
	for _, hostname := range node.Hostnames {
		switch {
		case hostname.Regex:
			// handled below
		case hostname.Default:
			r.defaultNode = &index
		default:
			r.namedNodes[strings.ToLower(hostname.Raw)] = index
		}
	}
	r.regexNodes = append(r.regexNodes, compiled...)
	return nil
}

// HasNodes reports whether any node definitions are registered.
func (r *Registry) HasNodes() bool {
	return len(r.nodes) > 0
}

// FindNode finds the node definition matching the given node name: exact
// lowercase hostname first, then regex patterns in registration order, then
// the default definition. The returned string names the match for
// diagnostics ("default" or the matched name/pattern).
func (r *Registry) FindNode(nodeName string) (*manifest.NodeDefinition, string) {
	if len(r.nodes) == 0 {
		return nil, ""
	}

	lower := strings.ToLower(nodeName)
	if index, ok := r.namedNodes[lower]; ok {
		return r.nodes[index], lower
	}
	for _, rn := range r.regexNodes {
		if rn.re.MatchString(nodeName) {
			return r.nodes[rn.index], "/" + rn.pattern + "/"
		}
	}
	if r.defaultNode != nil {
		return r.nodes[*r.defaultNode], "default"
	}
	return nil, ""
}

// findConflicting returns a previously registered definition that claims any
// of the given definition's hostnames, or nil.
func (r *Registry) findConflicting(node *manifest.NodeDefinition) *manifest.NodeDefinition {
	for _, hostname := range node.Hostnames {
		if hostname.Default {
			if r.defaultNode != nil {
				return r.nodes[*r.defaultNode]
			}
			continue
		}
		if hostname.Regex {
			for _, rn := range r.regexNodes {
				if rn.pattern == hostname.Pattern() {
					return r.nodes[rn.index]
				}
			}
			continue
		}
		if index, ok := r.namedNodes[strings.ToLower(hostname.Raw)]; ok {
			return r.nodes[index]
		}
	}
	return nil
}
