package migrate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ValidateDir checks every migration in dir: well-formed unique names, an Up
// section before the Down section, and balanced goose statement blocks.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	files, err := listMigrations(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations found in %q", dir)
	}

	versions := map[string]string{}
	suffixes := map[string]string{}
	for _, f := range files {
		if prev, ok := versions[f.version]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", f.version, prev, f.name)
		}
		versions[f.version] = f.name
		if prev, ok := suffixes[f.suffix]; ok {
			return fmt.Errorf("duplicate migration name %q in %q and %q", f.suffix, prev, f.name)
		}
		suffixes[f.suffix] = f.name

		b, err := os.ReadFile(filepath.Join(dir, f.name))
		if err != nil {
			return fmt.Errorf("read file %q: %w", f.name, err)
		}
		if err := checkSections(string(b)); err != nil {
			return fmt.Errorf("migration %q: %w", f.name, err)
		}
	}
	return nil
}

func checkSections(txt string) error {
	up := strings.Index(txt, "-- +goose Up")
	down := strings.Index(txt, "-- +goose Down")
	switch {
	case up < 0:
		return errors.New(`missing "-- +goose Up"`)
	case down < 0:
		return errors.New(`missing "-- +goose Down"`)
	case down < up:
		return errors.New("down section precedes up section")
	}
	if begins, ends := strings.Count(txt, "-- +goose StatementBegin"), strings.Count(txt, "-- +goose StatementEnd"); begins != ends {
		return fmt.Errorf("%d StatementBegin markers but %d StatementEnd", begins, ends)
	}
	return nil
}
