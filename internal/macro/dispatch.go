package macro

import (
	"fmt"

	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// Dispatch selects the concrete implementation for an adapter-dispatched
// macro call. The lookup order is fixed:
//
//  1. {adapterType}__{baseName}, then default__{baseName}, in the project
//     namespace.
//  2. The same two-step lookup inside packageName's namespace, if given.
//  3. The same two-step lookup in every known package namespace, in
//     registration order.
//
// A project-scoped macro always wins over any package-scoped macro, even an
// adapter-exact one: dispatch never prefers specificity over namespace
// precedence.
//
// When nothing is found anywhere, Dispatch returns nil and a warning
// diagnostic; the renderer substitutes an empty string for the call site.
func (r *Registry) Dispatch(baseName, adapterType, packageName, model string) (*Definition, []core.Diagnostic) {
	if def := r.dispatchIn(ProjectNamespace, baseName, adapterType); def != nil {
		return def, nil
	}

	if packageName != "" {
		if def := r.dispatchIn(packageName, baseName, adapterType); def != nil {
			return def, nil
		}
	}

	for _, pkg := range r.packageOrder {
		if pkg == packageName {
			continue
		}
		if def := r.dispatchIn(pkg, baseName, adapterType); def != nil {
			return def, nil
		}
	}

	return nil, []core.Diagnostic{core.Warn(model, fmt.Sprintf(
		"no implementation of macro %q for adapter %q; rendering empty", baseName, adapterType))}
}

// dispatchIn runs the two-step adapter/default lookup in one namespace.
func (r *Registry) dispatchIn(namespace, baseName, adapterType string) *Definition {
	variants := r.variants(namespace, baseName)
	for _, v := range variants {
		if v.AdapterPrefix == adapterType && adapterType != "" {
			return v
		}
	}
	for _, v := range variants {
		if v.AdapterPrefix == "default" {
			return v
		}
	}
	return nil
}

// Resolve finds the definition to invoke for a direct (non-dispatched) macro
// call by base name. Project macros take precedence over package macros; the
// variant among a base name's definitions is chosen by exact adapter match,
// then the default variant, then the first-registered variant (recorded as a
// diagnostic, since it is usually wrong for multi-adapter macros).
func (r *Registry) Resolve(baseName, adapterType, model string) (*Definition, []core.Diagnostic) {
	if variants := r.project[baseName]; len(variants) > 0 {
		return selectVariant(variants, adapterType, model)
	}
	for _, pkg := range r.packageOrder {
		if variants := r.packages[pkg][baseName]; len(variants) > 0 {
			return selectVariant(variants, adapterType, model)
		}
	}
	return nil, nil
}
