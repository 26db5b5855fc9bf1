// internal/rules/fieldpath.go
package rules

import (
	"strconv"
	"strings"

	"github.com/solatis/rulekeeper/internal/types"
)

/*
 * Field path resolution for rule contexts.
 *
 * A simple-rule field names a context key. When no key matches exactly, a
 * dotted field walks nested values: map segments select keys, numeric
 * segments index arrays (zero-based). "order.items.0.sku" resolves
 * ctx["order"]["items"][0]["sku"].
 *
 * Exact keys win so inputs whose keys contain dots keep working. Paths
 * deeper than maxPathDepth never resolve.
 */

const maxPathDepth = 16

// Resolve looks up field in ctx, falling back to a dotted path walk.
func Resolve(ctx *types.Map, field string) (types.Value, bool) {
	if v, ok := ctx.Get(field); ok {
		return v, true
	}
	if !strings.Contains(field, ".") {
		return types.Value{}, false
	}

	segments := strings.Split(field, ".")
	if len(segments) > maxPathDepth {
		return types.Value{}, false
	}
	root, ok := ctx.Get(segments[0])
	if !ok {
		return types.Value{}, false
	}
	return resolveSegments(root, segments[1:])
}

func resolveSegments(current types.Value, path []string) (types.Value, bool) {
	for _, seg := range path {
		switch current.Kind() {
		case types.KindMap:
			next, ok := current.Map().Get(seg)
			if !ok {
				return types.Value{}, false
			}
			current = next
		case types.KindArray:
			i, err := strconv.Atoi(seg)
			items := current.Items()
			if err != nil || i < 0 || i >= len(items) {
				return types.Value{}, false
			}
			current = items[i]
		default:
			// Scalar or null with path remaining
			return types.Value{}, false
		}
	}
	return current, true
}

// scope overlays results-so-far on the rule context for lookups.
type scope struct {
	ctx     *types.Map
	results *types.Map
}

func (s scope) lookup(field string) (types.Value, bool) {
	if v, ok := Resolve(s.results, field); ok {
		return v, true
	}
	return Resolve(s.ctx, field)
}
