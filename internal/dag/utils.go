package dag

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
)

// formatTraversal converts an hcl.Traversal to a human-readable string for logging.
func formatTraversal(t hcl.Traversal) string {
	var sb strings.Builder
	for i, part := range t {
		switch p := part.(type) {
		case hcl.TraverseRoot:
			sb.WriteString(p.Name)
		case hcl.TraverseAttr:
			sb.WriteRune('.')
			sb.WriteString(p.Name)
		case hcl.TraverseIndex:
			sb.WriteRune('[')
			if p.Key.Type() == cty.String {
				sb.WriteString(fmt.Sprintf("%q", p.Key.AsString()))
			} else if p.Key.Type() == cty.Number {
				bf := p.Key.AsBigFloat()
				sb.WriteString(bf.Text('f', -1))
			} else {
				sb.WriteString("...")
			}
			sb.WriteRune(']')
		default:
			if i > 0 {
				sb.WriteRune('.')
			}
			sb.WriteString("?")
		}
	}
	return sb.String()
}

// traversalParts flattens a traversal of root and attribute steps into their
// names. Index steps are rejected.
func traversalParts(t hcl.Traversal) ([]string, error) {
	parts := make([]string, 0, len(t))
	for _, part := range t {
		switch p := part.(type) {
		case hcl.TraverseRoot:
			parts = append(parts, p.Name)
		case hcl.TraverseAttr:
			parts = append(parts, p.Name)
		default:
			return nil, fmt.Errorf("unexpected index in address '%s'", formatTraversal(t))
		}
	}
	return parts, nil
}

// depAddress is a parsed depends_on entry.
type depAddress struct {
	kind      string // "step" or "resource"
	ownerType string // runner type or asset type
	name      string
	index     int
	hasIndex  bool
}

// depAddrRegex parses addresses like "exec.build", "step.exec.build[2]" or
// "resource.http_client.shared".
var depAddrRegex = regexp.MustCompile(`^(?:(step|resource)\.)?([a-zA-Z0-9_-]+)\.([a-zA-Z0-9_-]+)(?:\[(\d+)\])?$`)

func parseDepAddress(addr string) (*depAddress, error) {
	matches := depAddrRegex.FindStringSubmatch(addr)
	if matches == nil {
		return nil, fmt.Errorf("invalid dependency address %q", addr)
	}

	parsed := &depAddress{
		kind:      matches[1],
		ownerType: matches[2],
		name:      matches[3],
		index:     -1,
	}
	if parsed.kind == "" {
		parsed.kind = "step"
	}
	if matches[4] != "" {
		if parsed.kind == "resource" {
			return nil, fmt.Errorf("invalid dependency address %q: resources cannot be indexed", addr)
		}
		index, err := strconv.Atoi(matches[4])
		if err != nil {
			return nil, fmt.Errorf("invalid dependency address %q: %w", addr, err)
		}
		parsed.index = index
		parsed.hasIndex = true
	}
	return parsed, nil
}
