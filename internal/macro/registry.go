package macro

import (
	"fmt"

	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// ProjectNamespace is the namespace name used for project-scoped macros.
const ProjectNamespace = ""

// Registry stores parsed macros under namespaces. The project namespace is
// always registered first and always takes precedence over package
// namespaces; package macros are never merged into the project namespace.
//
// The registry is built once at the start of an import run and treated as
// read-only thereafter, so no locking is required during rendering.
type Registry struct {
	// project maps base name -> definitions declared in the project itself.
	project map[string][]*Definition

	// packages maps package name -> base name -> definitions.
	packages map[string]map[string][]*Definition

	// packageOrder preserves package registration order for fallback scans.
	packageOrder []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		project:  make(map[string][]*Definition),
		packages: make(map[string]map[string][]*Definition),
	}
}

// Register adds definitions under the given namespace. Use ProjectNamespace
// (the empty string) for project-scoped macros.
func (r *Registry) Register(defs []*Definition, namespace string) {
	for _, def := range defs {
		def.Package = namespace
		if namespace == ProjectNamespace {
			r.project[def.BaseName] = append(r.project[def.BaseName], def)
			continue
		}
		pkg, ok := r.packages[namespace]
		if !ok {
			pkg = make(map[string][]*Definition)
			r.packages[namespace] = pkg
			r.packageOrder = append(r.packageOrder, namespace)
		}
		pkg[def.BaseName] = append(pkg[def.BaseName], def)
	}
}

// Packages returns the registered package names in registration order.
func (r *Registry) Packages() []string {
	return r.packageOrder
}

// ProjectCount returns the number of distinct project-scoped base names.
func (r *Registry) ProjectCount() int {
	return len(r.project)
}

// Has reports whether any definition exists for the base name in any namespace.
func (r *Registry) Has(baseName string) bool {
	if len(r.project[baseName]) > 0 {
		return true
	}
	for _, pkg := range r.packageOrder {
		if len(r.packages[pkg][baseName]) > 0 {
			return true
		}
	}
	return false
}

// variants returns the definitions registered for baseName in the namespace,
// or nil.
func (r *Registry) variants(namespace, baseName string) []*Definition {
	if namespace == ProjectNamespace {
		return r.project[baseName]
	}
	return r.packages[namespace][baseName]
}

// selectVariant picks the definition to use among the variants of one base
// name: an exact adapter match wins, then the "default" variant, then the
// first-registered variant as a last resort. The last-resort case is usually
// wrong for multi-adapter macros, so it is reported via a diagnostic.
func selectVariant(variants []*Definition, adapterType, model string) (*Definition, []core.Diagnostic) {
	if len(variants) == 0 {
		return nil, nil
	}
	for _, v := range variants {
		if v.AdapterPrefix == adapterType && adapterType != "" {
			return v, nil
		}
	}
	for _, v := range variants {
		if v.AdapterPrefix == "default" {
			return v, nil
		}
	}
	first := variants[0]
	var diags []core.Diagnostic
	if first.AdapterPrefix != "" {
		diags = append(diags, core.Warn(model, fmt.Sprintf(
			"macro %s has no %s or default variant; falling back to first-registered %s",
			first.BaseName, adapterType, first.Name)))
	}
	return first, diags
}
