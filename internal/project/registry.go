// Package project manages the workspace-wide registry of known projects,
// each carrying its own task backlog. Grounded on the teacher's own global
// project registry (internal/project/registry.go) but adapted from a
// per-user YAML file to the spec's per-workspace projects.json.
package project

import (
	"encoding/json"
	"os"
	"path/filepath"

	orcerrors "github.com/randalmurphal/orc-core/internal/errors"
	"github.com/randalmurphal/orc-core/internal/task"
)

// RegistryFileName is the workspace-relative registry file name.
const RegistryFileName = "projects.json"

// Repo is an optional upstream repository reference.
type Repo struct {
	URL string `json:"url"`
}

// Project is a single registered project entry.
type Project struct {
	Name         string               `json:"name"`
	Path         string               `json:"path"`
	Status       task.ProjectStatus   `json:"status"`
	Language     string               `json:"language,omitempty"`
	TestCommand  string               `json:"test_command,omitempty"`
	BuildCommand string               `json:"build_command,omitempty"`
	Repo         *Repo                `json:"repo,omitempty"`
}

// Registry is the workspace-wide list of known projects.
type Registry struct {
	Version      int       `json:"version"`
	ProjectsRoot string    `json:"projects_root"`
	Projects     []Project `json:"projects"`
}

// ByName returns the project entry with the given name, if any.
func (r *Registry) ByName(name string) (Project, bool) {
	for _, p := range r.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return Project{}, false
}

// Load reads the registry at <workspaceRoot>/projects.json.
func Load(workspaceRoot string) (*Registry, error) {
	path := filepath.Join(workspaceRoot, RegistryFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, orcerrors.ErrRegistryNotFound(path)
		}
		return nil, orcerrors.ErrRegistryMalformed(path, err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, orcerrors.ErrRegistryMalformed(path, err)
	}
	return &reg, nil
}

// AbsPath resolves a project's workspace-relative path against the
// workspace root, matching the dispatcher's workingDirectory computation.
func (r *Registry) AbsPath(workspaceRoot string, p Project) string {
	return filepath.Join(workspaceRoot, p.Path)
}
