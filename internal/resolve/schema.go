package resolve

import "strings"

// DefaultSchema is the sentinel base schema used when no profile or
// run-level schema is configured.
const DefaultSchema = "public"

// Input carries everything needed to resolve one model's schema.
type Input struct {
	// ModelName is the model's unqualified name.
	ModelName string
	// FolderPath holds the folder segments under the models root.
	FolderPath []string
	// InlineConfig is the model's own {{ config(...) }} capture, may be nil.
	InlineConfig map[string]any
	// Metadata is the model's property-file entry, may be nil. MetadataConfig
	// is its `config:` sub-map and MetadataSchema its top-level schema field.
	MetadataConfig map[string]any
	MetadataSchema string
	// MetadataRootTags is the property entry's top-level tag list.
	MetadataRootTags []string
	// ProjectTree is the nested `models:` config tree from the project file.
	ProjectTree map[string]any
	// ProfileSchema is the profile/run-level schema, "" when absent.
	ProfileSchema string
	// DefaultSchema overrides the package default sentinel when set.
	DefaultSchema string
}

// Schema computes the final schema for a model.
//
// The custom component is taken from the first matching level, highest
// priority first, with no concatenation across levels:
//
//  1. inline per-model config (schema / +schema)
//  2. property-file config block, then its top-level schema field
//  3. the single most specific match in the project config tree along the
//     model's folder path (model-name entry beats folder entry, deeper
//     beats shallower)
//
// Whichever custom component is found is always joined to the base schema as
// "{base}_{custom}". The schema and +schema keys are treated as aliases of
// each other, not as replacement-vs-additive semantics; see DESIGN.md.
//
// When nothing matched and the model lives in a subfolder, the first folder
// segment becomes the schema.
func Schema(in Input) string {
	base := in.ProfileSchema
	if base == "" {
		base = in.DefaultSchema
	}
	if base == "" {
		base = DefaultSchema
	}

	if custom, ok := schemaKey(in.InlineConfig); ok {
		return base + "_" + custom
	}
	if custom, ok := schemaKey(in.MetadataConfig); ok {
		return base + "_" + custom
	}
	if in.MetadataSchema != "" {
		return base + "_" + in.MetadataSchema
	}
	if custom, ok := treeSchema(in.ProjectTree, in.FolderPath, in.ModelName); ok {
		return base + "_" + custom
	}

	if len(in.FolderPath) > 0 {
		return in.FolderPath[0]
	}
	return base
}

// Tags computes the final ordered tag set for a model. The pipeline is
// strictly additive, concatenated in fixed order and deduplicated keeping
// the first occurrence: project tree tags, then property-file tags (its
// config block, then its root tag list), then inline tags last.
func Tags(in Input) []string {
	var tags []string
	tags = append(tags, treeTags(in.ProjectTree, in.FolderPath, in.ModelName)...)
	tags = append(tags, tagValues(in.MetadataConfig)...)
	tags = append(tags, in.MetadataRootTags...)
	tags = append(tags, tagValues(in.InlineConfig)...)
	return dedupe(tags)
}

// schemaKey extracts a schema value from a config map. The two keys are
// aliases; "schema" is checked before "+schema".
func schemaKey(m map[string]any) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, key := range []string{"schema", "+schema"} {
		if v, ok := m[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// treeSchema walks the project config tree along the folder path and returns
// the single most specific schema entry: a model-name-keyed entry beats any
// enclosing folder entry, and a deeper entry beats a shallower one.
func treeSchema(tree map[string]any, folders []string, modelName string) (string, bool) {
	var folderSchema, modelSchema string
	var haveFolder, haveModel bool

	visit := func(node map[string]any) {
		if s, ok := schemaKey(node); ok {
			folderSchema, haveFolder = s, true
		}
		if sub, ok := childMap(node, modelName); ok {
			if s, ok := schemaKey(sub); ok {
				modelSchema, haveModel = s, true
			}
		}
	}

	node := tree
	if node == nil {
		return "", false
	}
	visit(node)
	for _, seg := range folders {
		sub, ok := childMap(node, seg)
		if !ok {
			break
		}
		node = sub
		visit(node)
	}

	if haveModel {
		return modelSchema, true
	}
	if haveFolder {
		return folderSchema, true
	}
	return "", false
}

// treeTags collects tag entries at every level visited along the folder
// path, shallowest first, ending with the model-name-keyed entry if present.
func treeTags(tree map[string]any, folders []string, modelName string) []string {
	if tree == nil {
		return nil
	}
	var tags []string
	var modelTags []string

	visit := func(node map[string]any) {
		tags = append(tags, tagValues(node)...)
		if sub, ok := childMap(node, modelName); ok {
			modelTags = append(modelTags, tagValues(sub)...)
		}
	}

	node := tree
	visit(node)
	for _, seg := range folders {
		sub, ok := childMap(node, seg)
		if !ok {
			break
		}
		node = sub
		visit(node)
	}
	return append(tags, modelTags...)
}

// tagValues reads "tags" / "+tags" from a config map, accepting a single
// string or a list of strings.
func tagValues(m map[string]any) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, key := range []string{"tags", "+tags"} {
		v, ok := m[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				out = append(out, t)
			}
		case []string:
			out = append(out, t...)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

func childMap(node map[string]any, key string) (map[string]any, bool) {
	v, ok := node[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Relation builds the qualified relation for a model given its resolved
// schema and optional alias.
func Relation(schema, modelName, alias string) string {
	table := modelName
	if alias != "" {
		table = alias
	}
	return schema + "." + table
}
