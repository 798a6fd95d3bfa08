package authz

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// roleFile is the YAML shape for one role row on disk.
type roleFile struct {
	Role       Role       `yaml:"role"`
	Permission Permission `yaml:",inline"`
}

// LoadFromFile reads a single role row from a YAML file.
func LoadFromFile(path string) (Role, Permission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", Permission{}, fmt.Errorf("read role file %s: %w", path, err)
	}

	var rf roleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return "", Permission{}, fmt.Errorf("parse role file %s: %w", path, err)
	}

	if err := rf.validate(); err != nil {
		return "", Permission{}, fmt.Errorf("validate role file %s: %w", path, err)
	}

	return rf.Role, rf.Permission, nil
}

// LoadFromDirectory reads all .yaml/.yml files from a directory of role
// rows. A missing directory returns an empty map (not an error), matching
// the config loader's pattern for optional files.
func LoadFromDirectory(dir string) (map[Role]Permission, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read role directory %s: %w", dir, err)
	}

	rows := make(map[Role]Permission)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		role, perm, err := LoadFromFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		rows[role] = perm
	}

	return rows, nil
}

func (rf *roleFile) validate() error {
	if rf.Role == "" {
		return fmt.Errorf("role is required")
	}
	if len(rf.Permission.ActionTypes) == 0 {
		return fmt.Errorf("role %q: action_types is required", rf.Role)
	}
	if len(rf.Permission.EntityTypes) == 0 {
		return fmt.Errorf("role %q: entity_types is required", rf.Role)
	}
	if rf.Permission.MaxActionsPerSession < 1 {
		return fmt.Errorf("role %q: max_actions_per_session must be >= 1", rf.Role)
	}
	return nil
}
