package project

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/dbtbridge/pkg/core"
)

// LoadError wraps a failure while reading or parsing a project file.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

const projectFileName = "dbt_project.yml"

// Load reads the project rooted at dir. The project file must exist;
// everything else (profiles, property files, macros) is optional.
func Load(dir string) (*Project, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving project dir: %w", err)
	}

	pf, err := loadProjectFile(filepath.Join(abs, projectFileName))
	if err != nil {
		return nil, err
	}

	p := &Project{
		Root:       abs,
		File:       pf,
		ConfigTree: configTree(pf),
		Vars:       pf.Vars,
	}
	if p.Vars == nil {
		p.Vars = map[string]any{}
	}

	p.Profile, err = loadProfile(abs, pf.Profile)
	if err != nil {
		return nil, err
	}

	if err := p.loadModels(); err != nil {
		return nil, err
	}
	if err := p.loadMacros(); err != nil {
		return nil, err
	}
	return p, nil
}

func loadProjectFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	var pf File
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if len(pf.ModelPaths) == 0 {
		pf.ModelPaths = pf.SourcePaths
	}
	if len(pf.ModelPaths) == 0 {
		pf.ModelPaths = []string{"models"}
	}
	if len(pf.MacroPaths) == 0 {
		pf.MacroPaths = []string{"macros"}
	}
	return &pf, nil
}

// configTree returns the models: subtree scoped to this project. dbt nests
// project config under the project name; when that level is present it is
// stripped so tree walks start at the models root.
func configTree(pf *File) map[string]any {
	if pf.Models == nil {
		return map[string]any{}
	}
	if len(pf.Name) > 0 {
		if sub, ok := pf.Models[pf.Name].(map[string]any); ok {
			return sub
		}
	}
	return pf.Models
}

// loadProfile reads profiles.yml from the project root and picks the active
// output of the named profile. A missing file is not an error.
func loadProfile(root, profile string) (*ProfileOutput, error) {
	path := filepath.Join(root, "profiles.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &LoadError{Path: path, Err: err}
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	block, ok := raw[profile].(map[string]any)
	if !ok {
		// Fall back to the first profile block that has outputs.
		for _, k := range sortedKeys(raw) {
			if m, isMap := raw[k].(map[string]any); isMap {
				if _, has := m["outputs"]; has {
					block = m
					break
				}
			}
		}
	}
	if block == nil {
		return nil, nil
	}

	outputs, _ := block["outputs"].(map[string]any)
	if outputs == nil {
		return nil, nil
	}
	targetName, _ := block["target"].(string)
	target, ok := outputs[targetName].(map[string]any)
	if !ok {
		for _, k := range sortedKeys(outputs) {
			if m, isMap := outputs[k].(map[string]any); isMap {
				target = m
				break
			}
		}
	}
	if target == nil {
		return nil, nil
	}

	var out ProfileOutput
	if err := mapstructure.Decode(target, &out); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &out, nil
}

// loadModels walks every model path collecting .sql files and merges in
// property-file metadata and source declarations found alongside them.
func (p *Project) loadModels() error {
	metadata := map[string]*core.ModelMetadata{}

	for _, mp := range p.File.ModelPaths {
		base := filepath.Join(p.Root, mp)
		if _, err := os.Stat(base); os.IsNotExist(err) {
			continue
		}

		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch {
			case strings.HasSuffix(path, ".sql"):
				m, err := loadModelFile(base, path)
				if err != nil {
					return err
				}
				p.Models = append(p.Models, m)
			case strings.HasSuffix(path, ".yml"), strings.HasSuffix(path, ".yaml"):
				if err := p.loadPropertyFile(path, metadata); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("walking %s: %w", base, err)
		}
	}

	for _, m := range p.Models {
		if md, ok := metadata[m.Name]; ok {
			m.Metadata = md
		}
	}
	return nil
}

func loadModelFile(base, path string) (*core.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var folders []string
	if dir := filepath.Dir(rel); dir != "." {
		folders = strings.Split(filepath.ToSlash(dir), "/")
	}

	name := strings.TrimSuffix(filepath.Base(path), ".sql")
	raw := string(data)
	return &core.Model{
		Name:         name,
		FilePath:     path,
		FolderPath:   folders,
		RawSQL:       raw,
		InlineConfig: ExtractInlineConfig(raw),
	}, nil
}

func (p *Project) loadPropertyFile(path string, metadata map[string]*core.ModelMetadata) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	var pf propertyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return &LoadError{Path: path, Err: err}
	}

	for i := range pf.Models {
		md := pf.Models[i]
		if md.Name == "" {
			continue
		}
		metadata[md.Name] = &md
	}
	for _, src := range pf.Sources {
		schema := src.Schema
		if schema == "" {
			schema = src.Name
		}
		for _, tbl := range src.Tables {
			p.Sources = append(p.Sources, core.Source{
				SourceName:  src.Name,
				TableName:   tbl.Name,
				Schema:      schema,
				Identifier:  tbl.Identifier,
				Description: tbl.Description,
			})
		}
	}
	return nil
}

// loadMacros reads project macro files, then each installed package's macros
// under dbt_packages/<name>/macros, packages in lexical order.
func (p *Project) loadMacros() error {
	for _, mp := range p.File.MacroPaths {
		base := filepath.Join(p.Root, mp)
		if err := p.collectMacros(base, ""); err != nil {
			return err
		}
	}

	pkgRoot := filepath.Join(p.Root, "dbt_packages")
	entries, err := os.ReadDir(pkgRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &LoadError{Path: pkgRoot, Err: err}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		base := filepath.Join(pkgRoot, e.Name(), "macros")
		if err := p.collectMacros(base, e.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (p *Project) collectMacros(base, namespace string) error {
	if _, err := os.Stat(base); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return &LoadError{Path: path, Err: err}
		}
		p.Macros = append(p.Macros, &MacroSource{
			Path:      path,
			Namespace: namespace,
			Content:   string(data),
		})
		return nil
	})
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
