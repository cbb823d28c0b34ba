// Package setup scaffolds the .overture/ state directory for a project.
package setup

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/skondo/overture/internal/config"
	"github.com/skondo/overture/templates"
)

// Run initializes .overture/ in the given project directory. The
// projectName overrides the auto-detected name (directory basename when
// empty). An existing .overture/ is refused, never overwritten.
func Run(projectDir, projectName string) error {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}

	base := config.Dir(absDir)
	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	for _, d := range []string{"logs", "prompts"} {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	if err := copyTemplateFile("progress.md", config.ProgressPath(absDir)); err != nil {
		return err
	}

	prompts, err := fs.ReadDir(templates.FS, "prompts")
	if err != nil {
		return fmt.Errorf("read prompt templates: %w", err)
	}
	for _, p := range prompts {
		src := filepath.Join("prompts", p.Name())
		dst := filepath.Join(base, "prompts", p.Name())
		if err := copyTemplateFile(src, dst); err != nil {
			return err
		}
	}

	if projectName == "" {
		projectName = filepath.Base(absDir)
	}
	if err := writeConfig(config.ConfigPath(absDir), config.Default(projectName)); err != nil {
		return fmt.Errorf("write config.json: %w", err)
	}

	return nil
}

func copyTemplateFile(name, dst string) error {
	data, err := fs.ReadFile(templates.FS, name)
	if err != nil {
		return fmt.Errorf("read template %s: %w", name, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}

func writeConfig(path string, cfg config.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
