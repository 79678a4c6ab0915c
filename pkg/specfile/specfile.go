package specfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"xenvman/pkg/env"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Loader reads environment and patch documents from disk.
// JSON and YAML are accepted; YAML is converted to JSON first so both go
// through the same decoding and default substitution.
type Loader struct {
	logger *logrus.Logger
}

// NewLoader creates a loader
func NewLoader(logger *logrus.Logger) *Loader {
	return &Loader{logger: logger}
}

// LoadInput loads an environment definition
func (l *Loader) LoadInput(path string) (*env.InputEnv, error) {
	var input env.InputEnv
	if err := l.load(path, &input); err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"file":      path,
		"name":      input.Name,
		"templates": len(input.Templates),
	}).Debug("Environment definition loaded")

	return &input, nil
}

// LoadPatch loads an environment patch
func (l *Loader) LoadPatch(path string) (*env.PatchEnv, error) {
	var patch env.PatchEnv
	if err := l.load(path, &patch); err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"file":               path,
		"stop_containers":    len(patch.StopContainers),
		"restart_containers": len(patch.RestartContainers),
		"templates":          len(patch.Templates),
	}).Debug("Patch loaded")

	return &patch, nil
}

// SaveInput writes an environment definition, as YAML when the extension
// asks for it and as indented JSON otherwise
func (l *Loader) SaveInput(path string, input *env.InputEnv) error {
	data, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode environment: %w", err)
	}

	if isYAML(path) {
		if data, err = jsonToYAML(data); err != nil {
			return fmt.Errorf("failed to encode environment: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	l.logger.WithField("file", path).Debug("Environment definition saved")
	return nil
}

func (l *Loader) load(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("spec file not found: %s", path)
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	if isYAML(path) {
		if data, err = yamlToJSON(data); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	doc, err := jsonCompatible(doc)
	if err != nil {
		return nil, err
	}

	return json.Marshal(doc)
}

func jsonToYAML(data []byte) ([]byte, error) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// jsonCompatible turns the map[interface{}]interface{} values YAML may
// produce for non-string keys into string keyed maps
func jsonCompatible(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, item := range val {
			converted, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			val[k] = converted
		}
		return val, nil
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, item := range val {
			converted, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			m[fmt.Sprint(k)] = converted
		}
		return m, nil
	case []interface{}:
		for i, item := range val {
			converted, err := jsonCompatible(item)
			if err != nil {
				return nil, err
			}
			val[i] = converted
		}
		return val, nil
	default:
		return val, nil
	}
}
