package manifest

import (
	"fmt"
	"strconv"
	"strings"
)

// resolveIncludes walks node, expanding `+`-prefixed merge directives
// against root (spec §6 "Include directives"):
//
//   - a key beginning with "+" (other than the literal "+%") names a
//     dotted path into root whose resolved value is merged into the
//     current map;
//   - "q+" is the quote-escape: the real key is "+"+rest, and the value is
//     taken literally, never treated as an include;
//   - "+%" on a map sets the merge strategy ("merge"|"replace"|"delete"|
//     "error") applied when this map itself is the target of an include.
//
// strategy is the merge strategy in force for node as it is merged into
// its parent; the top-level call passes "merge".
func resolveIncludes(node any, root map[string]any, strategy string) (any, error) {
	switch v := node.(type) {
	case map[string]any:
		return resolveMapIncludes(v, root)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := resolveIncludes(item, root, "merge")
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

func resolveMapIncludes(m map[string]any, root map[string]any) (map[string]any, error) {
	out := map[string]any{}

	// Plain keys and quote-escaped keys first, so includes merge on top of
	// them. When a map holds several `+` keys, the order in which they are
	// merged follows Go map iteration and is not defined.
	for key, value := range m {
		switch {
		case key == "+%":
			continue // strategy directive, consumed by the including side
		case strings.HasPrefix(key, "q+"):
			realKey := "+" + key[2:]
			out[realKey] = value
		case strings.HasPrefix(key, "+"):
			continue // handled below, in a second pass, after every plain key
		default:
			resolved, err := resolveIncludes(value, root, "merge")
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
	}

	for key, value := range m {
		if !strings.HasPrefix(key, "+") || key == "+%" || strings.HasPrefix(key, "q+") {
			continue
		}
		path, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("include directive %q: value must be a path string, got %T", key, value)
		}
		included, err := lookupPath(root, path)
		if err != nil {
			return nil, fmt.Errorf("include directive %q -> %q: %w", key, path, err)
		}
		includedMap, ok := included.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("include directive %q -> %q: target is not a map", key, path)
		}
		resolvedIncluded, err := resolveMapIncludes(includedMap, root)
		if err != nil {
			return nil, err
		}
		strategy := "merge"
		if s, ok := includedMap["+%"].(string); ok {
			strategy = s
		}
		if err := mergeInto(out, resolvedIncluded, strategy); err != nil {
			return nil, fmt.Errorf("include directive %q: %w", key, err)
		}
	}

	return out, nil
}

func mergeInto(dst, src map[string]any, strategy string) error {
	switch strategy {
	case "replace":
		for k, v := range src {
			dst[k] = v
		}
	case "delete":
		for k := range src {
			delete(dst, k)
		}
	case "error":
		for k, v := range src {
			if _, exists := dst[k]; exists {
				return fmt.Errorf("merge strategy %q: key %q already present", strategy, k)
			}
			dst[k] = v
		}
	case "merge", "":
		for k, v := range src {
			if existing, ok := dst[k].(map[string]any); ok {
				if incoming, ok := v.(map[string]any); ok {
					merged := map[string]any{}
					for kk, vv := range existing {
						merged[kk] = vv
					}
					if err := mergeInto(merged, incoming, "merge"); err != nil {
						return err
					}
					dst[k] = merged
					continue
				}
			}
			dst[k] = v
		}
	default:
		return fmt.Errorf("unknown merge strategy %q", strategy)
	}
	return nil
}

// lookupPath resolves a dot-separated path into root, e.g.
// "spec.service_template.node_templates.web". Numeric segments index into
// slices.
func lookupPath(root map[string]any, path string) (any, error) {
	var cur any = root
	for _, segment := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, fmt.Errorf("no such key %q", segment)
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("invalid list index %q", segment)
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %q: not a map or list", segment)
		}
	}
	return cur, nil
}
