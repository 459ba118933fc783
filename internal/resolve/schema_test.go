package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchema_PriorityChain(t *testing.T) {
	tree := map[string]any{
		"staging": map[string]any{
			"+schema": "tree_staging",
			"deep": map[string]any{
				"schema": "tree_deep",
			},
			"my_model": map[string]any{
				"schema": "tree_model",
			},
		},
	}

	tests := []struct {
		name string
		in   Input
		want string
	}{
		{
			name: "inline beats everything",
			in: Input{
				ModelName:      "my_model",
				FolderPath:     []string{"staging"},
				InlineConfig:   map[string]any{"schema": "inline"},
				MetadataConfig: map[string]any{"schema": "meta"},
				ProjectTree:    tree,
				ProfileSchema:  "analytics",
			},
			want: "analytics_inline",
		},
		{
			name: "metadata config beats metadata top-level",
			in: Input{
				ModelName:      "my_model",
				MetadataConfig: map[string]any{"+schema": "meta_cfg"},
				MetadataSchema: "meta_top",
				ProfileSchema:  "analytics",
			},
			want: "analytics_meta_cfg",
		},
		{
			name: "metadata top-level schema",
			in: Input{
				ModelName:      "my_model",
				MetadataSchema: "meta_top",
				ProfileSchema:  "analytics",
			},
			want: "analytics_meta_top",
		},
		{
			name: "model-name tree entry beats folder entry",
			in: Input{
				ModelName:     "my_model",
				FolderPath:    []string{"staging"},
				ProjectTree:   tree,
				ProfileSchema: "analytics",
			},
			want: "analytics_tree_model",
		},
		{
			name: "deeper folder entry beats shallower",
			in: Input{
				ModelName:     "other_model",
				FolderPath:    []string{"staging", "deep"},
				ProjectTree:   tree,
				ProfileSchema: "analytics",
			},
			want: "analytics_tree_deep",
		},
		{
			name: "custom always joined, never concatenated across levels",
			in: Input{
				ModelName:     "other_model",
				FolderPath:    []string{"staging"},
				ProjectTree:   tree,
				ProfileSchema: "analytics",
			},
			want: "analytics_tree_staging",
		},
		{
			name: "no match falls back to first folder segment",
			in: Input{
				ModelName:     "m",
				FolderPath:    []string{"marts", "finance"},
				ProfileSchema: "analytics",
			},
			want: "marts",
		},
		{
			name: "no match and no folder uses base",
			in: Input{
				ModelName:     "m",
				ProfileSchema: "analytics",
			},
			want: "analytics",
		},
		{
			name: "missing profile schema uses default sentinel",
			in: Input{
				ModelName:    "m",
				InlineConfig: map[string]any{"schema": "custom"},
			},
			want: "public_custom",
		},
		{
			name: "plus-schema alias in inline config",
			in: Input{
				ModelName:     "m",
				InlineConfig:  map[string]any{"+schema": "custom"},
				ProfileSchema: "analytics",
			},
			want: "analytics_custom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Schema(tt.in))
		})
	}
}

func TestTags_AdditivePipeline(t *testing.T) {
	in := Input{
		ModelName:  "my_model",
		FolderPath: []string{"staging"},
		ProjectTree: map[string]any{
			"staging": map[string]any{
				"+tags": []any{"a"},
			},
		},
		MetadataConfig:   map[string]any{"tags": []any{"b"}},
		MetadataRootTags: []string{"c"},
		InlineConfig:     map[string]any{"tags": []any{"a", "d"}},
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, Tags(in))
}

func TestTags_SingleStringAndModelEntry(t *testing.T) {
	in := Input{
		ModelName:  "orders",
		FolderPath: []string{"marts"},
		ProjectTree: map[string]any{
			"+tags": "root",
			"marts": map[string]any{
				"tags": "folder",
				"orders": map[string]any{
					"+tags": []any{"model"},
				},
			},
		},
	}
	assert.Equal(t, []string{"root", "folder", "model"}, Tags(in))
}

func TestRelation(t *testing.T) {
	assert.Equal(t, "analytics.orders", Relation("analytics", "orders", ""))
	assert.Equal(t, "analytics.fct_orders", Relation("analytics", "orders", "fct_orders"))
}

func TestNameMap_FreezePanics(t *testing.T) {
	m := NewNameMap()
	m.SetModel("a", "s.a")
	m.SetSource("raw", "t", "raw.t")
	m.Freeze()

	rel, ok := m.Model("a")
	assert.True(t, ok)
	assert.Equal(t, "s.a", rel)
	rel, ok = m.Source("raw", "t")
	assert.True(t, ok)
	assert.Equal(t, "raw.t", rel)
	assert.Equal(t, 1, m.Len())

	assert.Panics(t, func() { m.SetModel("b", "s.b") })
	assert.Panics(t, func() { m.SetSource("x", "y", "x.y") })
}
