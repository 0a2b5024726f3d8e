package prompt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// table is one sections file: section name -> key -> value, in file order.
type table struct {
	order    []string
	sections map[string]map[string]string
}

func newTable() *table {
	return &table{sections: make(map[string]map[string]string)}
}

func (t *table) set(section string, values map[string]string) {
	if _, ok := t.sections[section]; !ok {
		t.order = append(t.order, section)
	}
	t.sections[section] = values
}

func (t *table) get(section string) (map[string]string, bool) {
	v, ok := t.sections[section]
	return v, ok
}

// merge copies every section of other into t, replacing existing ones.
func (t *table) merge(other *table) {
	for _, name := range other.order {
		t.set(name, other.sections[name])
	}
}

func (t *table) clone() *table {
	c := newTable()
	for _, name := range t.order {
		values := make(map[string]string, len(t.sections[name]))
		for k, v := range t.sections[name] {
			values[k] = v
		}
		c.set(name, values)
	}
	return c
}

type format int

const (
	formatINI format = iota
	formatYAML
)

func formatOf(path string) format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return formatYAML
	default:
		return formatINI
	}
}

var iniOptions = ini.LoadOptions{
	AllowPythonMultilineValues: true,
	IgnoreInlineComment:        true,
	SpaceBeforeInlineComment:   true,
}

// readTable loads path. A missing file yields an error matching
// os.ErrNotExist.
func readTable(path string) (*table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch formatOf(path) {
	case formatYAML:
		return decodeYAML(data)
	default:
		return decodeINI(data)
	}
}

func decodeINI(data []byte) (*table, error) {
	f, err := ini.LoadSources(iniOptions, data)
	if err != nil {
		return nil, fmt.Errorf("parse ini: %w", err)
	}
	t := newTable()
	for _, sec := range f.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		t.set(sec.Name(), sec.KeysHash())
	}
	return t, nil
}

func decodeYAML(data []byte) (*table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	t := newTable()
	if len(doc.Content) == 0 {
		return t, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse yaml: top level must be a mapping of sections")
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		var values map[string]string
		if err := root.Content[i+1].Decode(&values); err != nil {
			return nil, fmt.Errorf("parse yaml section %q: %w", root.Content[i].Value, err)
		}
		if values == nil {
			values = map[string]string{}
		}
		t.set(root.Content[i].Value, values)
	}
	return t, nil
}

func writeTable(path string, t *table) error {
	var data []byte
	var err error
	switch formatOf(path) {
	case formatYAML:
		data, err = encodeYAML(t)
	default:
		data, err = encodeINI(t)
	}
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create prompt dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func encodeINI(t *table) ([]byte, error) {
	f := ini.Empty(iniOptions)
	for _, name := range t.order {
		sec, err := f.NewSection(name)
		if err != nil {
			return nil, err
		}
		for _, k := range sortedKeys(t.sections[name]) {
			if _, err := sec.NewKey(k, t.sections[name][k]); err != nil {
				return nil, err
			}
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeYAML(t *table) ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range t.order {
		var value yaml.Node
		if err := value.Encode(t.sections[name]); err != nil {
			return nil, err
		}
		root.Content = append(root.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name},
			&value,
		)
	}
	return yaml.Marshal(root)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
