package stage

import (
	"maps"

	"github.com/flarebyte/mipforge/internal/subst"
)

// BuildCommand renders a tool command template in two passes. The first pass
// binds "options" plus params and run params; the second resolves any
// placeholder that a spliced value brought in. Run params win over params.
// Unknown placeholders stay verbatim.
func BuildCommand(tpl, options string, params, run map[string]string) string {
	ctx := make(map[string]string, len(params)+len(run)+1)
	maps.Copy(ctx, params)
	maps.Copy(ctx, run)
	first := maps.Clone(ctx)
	first["options"] = options
	return subst.Substitute(subst.Substitute(tpl, first), ctx)
}
