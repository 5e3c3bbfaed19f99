package opensfm

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Defaults OpenSfM applies when config.yaml omits the submodel layout.
const (
	DefaultSubmodelsRelpath        = "../submodels/opensfm"
	DefaultSubmodelRelpathTemplate = "../submodels/submodel_%04d/opensfm"
)

// WriteConfig writes "key: value" directives as a YAML mapping, keeping the
// order of first appearance. A repeated key replaces the earlier value.
func WriteConfig(path string, lines []string) error {
	doc, err := configNode(lines)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "unable to encode config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}
	return nil
}

func configNode(lines []string) (*yaml.Node, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	index := make(map[string]int)

	for _, line := range lines {
		var doc yaml.Node
		if err := yaml.Unmarshal([]byte(line), &doc); err != nil {
			return nil, errors.Wrapf(err, "invalid config directive %q", line)
		}
		if len(doc.Content) != 1 || doc.Content[0].Kind != yaml.MappingNode || len(doc.Content[0].Content) != 2 {
			return nil, errors.Errorf("config directive %q is not a single key: value pair", line)
		}
		key, value := doc.Content[0].Content[0], doc.Content[0].Content[1]
		if i, ok := index[key.Value]; ok {
			mapping.Content[i+1] = value
			continue
		}
		index[key.Value] = len(mapping.Content)
		mapping.Content = append(mapping.Content, key, value)
	}
	return mapping, nil
}

// MetaDataSet reads the submodel layout of a large OpenSfM project.
type MetaDataSet struct {
	path   string
	layout struct {
		SubmodelsRelpath        string `yaml:"submodels_relpath"`
		SubmodelRelpathTemplate string `yaml:"submodel_relpath_template"`
	}
}

// LoadMetaDataSet reads config.yaml from the OpenSfM project at path.
func LoadMetaDataSet(path string) (*MetaDataSet, error) {
	m := &MetaDataSet{path: path}
	data, err := os.ReadFile(filepath.Join(path, configFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "unable to read config")
	}
	if err := yaml.Unmarshal(data, &m.layout); err != nil {
		return nil, errors.Wrap(err, "unable to parse config")
	}
	if m.layout.SubmodelsRelpath == "" {
		m.layout.SubmodelsRelpath = DefaultSubmodelsRelpath
	}
	if m.layout.SubmodelRelpathTemplate == "" {
		m.layout.SubmodelRelpathTemplate = DefaultSubmodelRelpathTemplate
	}
	return m, nil
}

// SubmodelPath returns the absolute OpenSfM path of submodel i.
func (m *MetaDataSet) SubmodelPath(i int) string {
	p := filepath.Join(m.path, fmt.Sprintf(m.layout.SubmodelRelpathTemplate, i))
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// SubmodelPaths lists submodel directories starting at index 0 and stopping
// at the first gap, in index order.
func (m *MetaDataSet) SubmodelPaths() []string {
	var paths []string
	for i := 0; ; i++ {
		p := m.SubmodelPath(i)
		if !dirExists(p) {
			return paths
		}
		paths = append(paths, p)
	}
}
