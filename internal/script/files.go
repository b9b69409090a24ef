package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidFilename is returned for names that are not plain .lua files.
var ErrInvalidFilename = errors.New("invalid script filename")

// sanitizeFilename accepts "name" or "name.lua" and rejects anything that
// could leave the scripts directory.
func sanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if !strings.HasSuffix(name, ".lua") {
		name += ".lua"
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	if name == ".lua" || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return name, nil
}

func (s *Store) path(name string) (string, error) {
	clean, err := sanitizeFilename(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, clean), nil
}

// Code returns the source of a script.
func (s *Store) Code(name string) (string, error) {
	path, err := s.path(name)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// Save writes code to a script after checking that it builds.
func (s *Store) Save(name, code string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if _, err := s.BuildString(name, code); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create scripts dir: %w", err)
	}
	return os.WriteFile(path, []byte(code), 0o644)
}

// Delete removes a script.
func (s *Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// List returns the script names, without extension, in sorted order.
func (s *Store) List() ([]string, error) {
	var names []string
	files, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return names, nil
		}
		return nil, err
	}
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".lua" {
			names = append(names, strings.TrimSuffix(file.Name(), ".lua"))
		}
	}
	sort.Strings(names)
	return names, nil
}
