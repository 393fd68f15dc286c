package migrate

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"
)

const versionLayout = "20060102150405"

var sqlFileRe = regexp.MustCompile(`^(\d{14})_([a-z0-9_]+)\.sql$`)

// migrationFile is one goose SQL file named <version>_<suffix>.sql. The
// suffix identifies the change and is unique within the directory.
type migrationFile struct {
	name    string
	version string
	suffix  string
}

// listMigrations returns the .sql files in dir sorted by version. Other files
// are ignored; a .sql file with a malformed name is an error.
func listMigrations(dir string) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q: %w", dir, err)
	}
	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		m := sqlFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", e.Name())
		}
		files = append(files, migrationFile{name: e.Name(), version: m[1], suffix: m[2]})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// nextVersion is now, or one second past the newest existing version when the
// clock is behind it, so new files always apply last.
func nextVersion(files []migrationFile, now time.Time) string {
	version := now.UTC()
	if len(files) > 0 {
		if latest, err := time.Parse(versionLayout, files[len(files)-1].version); err == nil && !version.After(latest) {
			version = latest.Add(time.Second)
		}
	}
	return version.Format(versionLayout)
}
