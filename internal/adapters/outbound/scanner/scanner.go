package scanner

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/abdidvp/layerfix/internal/domain"
)

// maxFileSize caps a single source file read from disk or an archive.
const maxFileSize = 4 << 20

var skipDirs = map[string]bool{
	".git":         true,
	".idea":        true,
	".layerfix":    true,
	"node_modules": true,
	"target":       true,
	"build":        true,
}

// Loader implements domain.ProjectLoader. Paths are matched relative to the
// project root, slash separated.
type Loader struct {
	include []string
	exclude []string
}

func New(include, exclude []string) *Loader {
	if len(include) == 0 {
		include = []string{"**/*.java"}
	}
	return &Loader{include: include, exclude: exclude}
}

// FromConfig builds a loader from the include and exclude globs.
func FromConfig(cfg domain.Config) *Loader { return New(cfg.Include, cfg.Exclude) }

func (l *Loader) wants(rel string) bool {
	if matchAny(l.exclude, rel) {
		return false
	}
	return matchAny(l.include, rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, p := range patterns {
		if ok, err := doublestar.Match(p, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// LoadDir reads every matching file under root.
func (l *Loader) LoadDir(ctx context.Context, root string) (domain.Project, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return domain.Project{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return domain.Project{}, fmt.Errorf("reading project: %w", err)
	}
	if !info.IsDir() {
		return domain.Project{}, fmt.Errorf("reading project: %s is not a directory", root)
	}

	project := domain.Project{Name: filepath.Base(abs), Root: abs, Files: map[string][]byte{}}
	err = filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && (skipDirs[d.Name()] || matchAny(l.exclude, rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !l.wants(rel) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > maxFileSize {
			return fmt.Errorf("%s exceeds %d bytes", rel, maxFileSize)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		project.Files[rel] = data
		return nil
	})
	if err != nil {
		return domain.Project{}, fmt.Errorf("reading project: %w", err)
	}
	return project, nil
}

// LoadZip reads every matching entry of a zip archive. Entries escaping the
// archive root are rejected. A single top-level directory shared by every
// entry is stripped, unless it is the source root itself.
func (l *Loader) LoadZip(ctx context.Context, name string, data []byte) (domain.Project, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.Project{}, fmt.Errorf("opening archive: %w", err)
	}

	files := map[string][]byte{}
	for _, f := range zr.File {
		if ctx.Err() != nil {
			return domain.Project{}, ctx.Err()
		}
		if f.FileInfo().IsDir() {
			continue
		}
		rel := path.Clean(strings.ReplaceAll(f.Name, "\\", "/"))
		if rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
			return domain.Project{}, fmt.Errorf("archive entry %q escapes the project root", f.Name)
		}
		if f.UncompressedSize64 > maxFileSize {
			return domain.Project{}, fmt.Errorf("archive entry %s exceeds %d bytes", rel, maxFileSize)
		}
		if !l.wants(rel) || skipped(rel) {
			continue
		}
		content, err := readEntry(f)
		if err != nil {
			return domain.Project{}, fmt.Errorf("reading archive entry %s: %w", rel, err)
		}
		files[rel] = content
	}

	project := domain.Project{Name: strings.TrimSuffix(path.Base(name), path.Ext(name)), Files: stripCommonRoot(files)}
	if project.Name == "" || project.Name == "." {
		project.Name = "upload"
	}
	return project, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxFileSize))
}

func skipped(rel string) bool {
	for _, part := range strings.Split(path.Dir(rel), "/") {
		if skipDirs[part] {
			return true
		}
	}
	return false
}

func stripCommonRoot(files map[string][]byte) map[string][]byte {
	root := ""
	for p := range files {
		i := strings.Index(p, "/")
		if i < 0 {
			return files
		}
		if root == "" {
			root = p[:i+1]
		} else if !strings.HasPrefix(p, root) {
			return files
		}
	}
	if root == "" || root == "src/" {
		return files
	}
	out := make(map[string][]byte, len(files))
	for p, data := range files {
		out[strings.TrimPrefix(p, root)] = data
	}
	return out
}

// ErrDuplicateSource is returned when two source keys name the same file.
var ErrDuplicateSource = errors.New("duplicate source path")

// FromSources builds a project from an in-memory map of path to source text.
// Keys without an extension are taken as Java sources.
func FromSources(name string, sources map[string]string) (domain.Project, error) {
	keys := make([]string, 0, len(sources))
	for k := range sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	project := domain.Project{Name: name, Files: make(map[string][]byte, len(sources))}
	origin := make(map[string]string, len(sources))
	for _, k := range keys {
		p := strings.TrimPrefix(path.Clean(strings.ReplaceAll(k, "\\", "/")), "/")
		if path.Ext(p) == "" {
			p += ".java"
		}
		if first, ok := origin[p]; ok {
			return domain.Project{}, fmt.Errorf("%w: %q and %q both name %s", ErrDuplicateSource, first, k, p)
		}
		origin[p] = k
		project.Files[p] = []byte(sources[k])
	}
	return project, nil
}
