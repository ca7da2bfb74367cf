package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const (
	upSuffix      = ".up.sql"
	downSuffix    = ".down.sql"
	versionDigits = 6
)

const migrationUpTemplate = `-- Migration: {{.Name}}
-- Created: {{.Timestamp}}
-- Description: {{.Description}}

`

const migrationDownTemplate = `-- Migration: {{.Name}} (Rollback)
-- Created: {{.Timestamp}}

`

// MigrationFile represents a migration file pair
type MigrationFile struct {
	Version     string
	Name        string
	Description string
	Timestamp   string
	UpPath      string
	DownPath    string
}

// CreateMigration writes an empty up/down pair numbered one past the highest
// existing version in migrationsDir
func CreateMigration(migrationsDir, name, description string) (*MigrationFile, error) {
	slug := sanitizeName(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	next, err := NextVersion(migrationsDir)
	if err != nil {
		return nil, err
	}
	version := fmt.Sprintf("%0*d", versionDigits, next)
	baseName := version + "_" + slug

	mf := &MigrationFile{
		Version:     version,
		Name:        name,
		Description: description,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		UpPath:      filepath.Join(migrationsDir, baseName+upSuffix),
		DownPath:    filepath.Join(migrationsDir, baseName+downSuffix),
	}

	if err := createMigrationFile(mf.UpPath, migrationUpTemplate, mf); err != nil {
		return nil, fmt.Errorf("failed to create up migration: %w", err)
	}
	if err := createMigrationFile(mf.DownPath, migrationDownTemplate, mf); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, fmt.Errorf("failed to create down migration: %w", err)
	}

	return mf, nil
}

// NextVersion returns the version number the next migration should use
func NextVersion(migrationsDir string) (uint64, error) {
	names, err := ListMigrations(migrationsDir)
	if err != nil {
		return 0, err
	}
	var highest uint64
	for _, name := range names {
		prefix, _, _ := strings.Cut(name, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		if v > highest {
			highest = v
		}
	}
	return highest + 1, nil
}

func createMigrationFile(path, tmplContent string, data *MigrationFile) error {
	tmpl, err := template.New("migration").Parse(tmplContent)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", path, err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

// sanitizeName converts a migration name to a safe file name format
func sanitizeName(name string) string {
	result := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
			result = append(result, c)
		case c >= 'A' && c <= 'Z':
			result = append(result, c+'a'-'A')
		case c >= '0' && c <= '9':
			result = append(result, c)
		case c == ' ' || c == '-' || c == '_':
			if len(result) > 0 && result[len(result)-1] != '_' {
				result = append(result, '_')
			}
		}
	}
	return strings.TrimSuffix(string(result), "_")
}

// ListMigrations returns the base names of all up migrations in a directory,
// in version order
func ListMigrations(migrationsDir string) ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	migrations := make([]string, 0, len(entries)/2)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if base, ok := strings.CutSuffix(entry.Name(), upSuffix); ok && base != "" {
			migrations = append(migrations, base)
		}
	}
	sort.Strings(migrations)
	return migrations, nil
}
