// Package migrations exposes the ledger schema as per-dialect migration
// sources for go-persistence-bun clients.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	iap "github.com/goliatone/go-iap"
)

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

const rootDir = "data/sql/migrations"

// dialectDirs maps each dialect to its directory below the migration root.
// Postgres files live at the root itself.
var dialectDirs = []struct {
	dialect Dialect
	dir     string
}{
	{DialectPostgres, "."},
	{DialectSQLite, "sqlite"},
}

func ParseDialect(name string) (Dialect, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pg":
		return DialectPostgres, true
	case "sqlite", "sqlite3":
		return DialectSQLite, true
	default:
		return "", false
	}
}

// Source is one dialect's migration directory with its ordered versions.
type Source struct {
	Dialect  Dialect
	Dir      string
	FS       fs.FS
	Versions []string
}

// Sources resolves every dialect source under root, or under the embedded
// ledger schema when root is nil. Each source must hold at least one up
// migration and every up file needs its down pair.
func Sources(root fs.FS) ([]Source, error) {
	base, baseDir, err := resolveRoot(root)
	if err != nil {
		return nil, err
	}
	out := make([]Source, 0, len(dialectDirs))
	for _, entry := range dialectDirs {
		src, err := loadSource(base, baseDir, entry.dialect, entry.dir)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

func loadSource(base fs.FS, baseDir string, dialect Dialect, dir string) (Source, error) {
	sub := base
	if dir != "." {
		var err error
		if sub, err = fs.Sub(base, dir); err != nil {
			return Source{}, fmt.Errorf("migrations: resolve %s directory: %w", dialect, err)
		}
	}
	src := Source{Dialect: dialect, Dir: path.Join(baseDir, dir), FS: sub}
	versions, err := pairedVersions(sub)
	if err != nil {
		return Source{}, fmt.Errorf("migrations: %s (%s): %w", dialect, src.Dir, err)
	}
	src.Versions = versions
	return src, nil
}

func pairedVersions(fsys fs.FS) ([]string, error) {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, err
	}
	if len(ups) == 0 {
		return nil, fmt.Errorf("no *.up.sql files")
	}
	versions := make([]string, 0, len(ups))
	for _, up := range ups {
		name := strings.TrimSuffix(up, ".up.sql")
		if _, err := fs.Stat(fsys, name+".down.sql"); err != nil {
			return nil, fmt.Errorf("%s has no down migration", up)
		}
		versions = append(versions, name)
	}
	slices.Sort(versions)
	return versions, nil
}

func resolveRoot(root fs.FS) (fs.FS, string, error) {
	if root == nil {
		root = iap.GetMigrationsFS()
	}
	if info, err := fs.Stat(root, rootDir); err == nil && info.IsDir() {
		sub, err := fs.Sub(root, rootDir)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: resolve %s: %w", rootDir, err)
		}
		return sub, rootDir, nil
	}
	// Already rooted at the migration directory.
	if matches, _ := fs.Glob(root, "*.sql"); len(matches) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", rootDir)
}

// Registrar receives each selected source, typically forwarding src.FS to
// a go-persistence-bun client's RegisterSQLMigrations.
type Registrar func(ctx context.Context, label string, src Source) error

type Plan struct {
	Label    string
	Dialects []Dialect
	Root     fs.FS
}

type Option func(*Plan)

func WithLabel(label string) Option {
	return func(p *Plan) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			p.Label = trimmed
		}
	}
}

// ForDialects limits registration to the named dialects. Unknown names are
// ignored.
func ForDialects(names ...string) Option {
	return func(p *Plan) {
		var selected []Dialect
		for _, name := range names {
			dialect, ok := ParseDialect(name)
			if ok && !slices.Contains(selected, dialect) {
				selected = append(selected, dialect)
			}
		}
		if len(selected) > 0 {
			p.Dialects = selected
		}
	}
}

// FromFS registers migrations from root instead of the embedded schema.
func FromFS(root fs.FS) Option {
	return func(p *Plan) {
		if root != nil {
			p.Root = root
		}
	}
}

// Register resolves the sources selected by opts and hands each one to
// registrar in dialect order.
func Register(ctx context.Context, registrar Registrar, opts ...Option) (Plan, error) {
	plan := Plan{
		Label:    "go-iap",
		Dialects: []Dialect{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&plan)
		}
	}
	if registrar == nil {
		return plan, fmt.Errorf("migrations: registrar is required")
	}

	sources, err := Sources(plan.Root)
	if err != nil {
		return plan, err
	}
	for _, src := range sources {
		if !slices.Contains(plan.Dialects, src.Dialect) {
			continue
		}
		if err := registrar(ctx, plan.Label, src); err != nil {
			return plan, fmt.Errorf("migrations: register %s: %w", src.Dialect, err)
		}
	}
	return plan, nil
}
