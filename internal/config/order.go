package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// mappingKeyOrder returns the keys of the mapping found at path, in document order.
// A document without that path yields an empty slice.
func mappingKeyOrder(data []byte, path ...string) ([]string, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	node := doc.Content[0]
	for _, segment := range path {
		node = lookupMapping(node, segment)
		if node == nil {
			return nil, nil
		}
	}
	if node.Kind != yaml.MappingNode {
		return nil, nil
	}

	keys := make([]string, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keys = append(keys, strings.ToLower(node.Content[i].Value))
	}
	return keys, nil
}

func lookupMapping(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if strings.EqualFold(node.Content[i].Value, key) {
			return node.Content[i+1]
		}
	}
	return nil
}
