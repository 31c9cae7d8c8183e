// Package output persists the fixed files of a run.
package output

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abdidvp/layerfix/internal/domain"
)

// ReportName is the entry holding the JSON report in zip output.
const ReportName = "layerfix-report.json"

// DirWriter implements domain.OutputWriter by replacing the content of a
// directory with the given files.
type DirWriter struct {
	dir string
}

func NewDirWriter(dir string) *DirWriter { return &DirWriter{dir: dir} }

// Write wipes the directory and writes every file below it.
func (w *DirWriter) Write(ctx context.Context, files map[string][]byte) error {
	if w.dir == "" || w.dir == "/" || w.dir == "." {
		return fmt.Errorf("refusing to wipe output directory %q", w.dir)
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("clearing output directory: %w", err)
	}
	for _, name := range sortedNames(files) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := safeRel(name)
		if err != nil {
			return err
		}
		p := filepath.Join(w.dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(p), err)
		}
		if err := os.WriteFile(p, files[name], 0644); err != nil {
			return fmt.Errorf("writing %s: %w", rel, err)
		}
	}
	return nil
}

// ZipWriter implements domain.OutputWriter on an io.Writer.
type ZipWriter struct {
	w io.Writer
}

func NewZipWriter(w io.Writer) *ZipWriter { return &ZipWriter{w: w} }

func (z *ZipWriter) Write(ctx context.Context, files map[string][]byte) error {
	zw := zip.NewWriter(z.w)
	for _, name := range sortedNames(files) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := safeRel(name)
		if err != nil {
			return err
		}
		f, err := zw.Create(rel)
		if err != nil {
			return fmt.Errorf("adding %s: %w", rel, err)
		}
		if _, err := f.Write(files[name]); err != nil {
			return fmt.Errorf("adding %s: %w", rel, err)
		}
	}
	return zw.Close()
}

// ZipReport zips the fixed files together with the JSON report.
func ZipReport(ctx context.Context, files map[string][]byte, rep *domain.ProjectReport) ([]byte, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	all := make(map[string][]byte, len(files)+1)
	for k, v := range files {
		all[k] = v
	}
	all[ReportName] = data

	var buf bytes.Buffer
	if err := NewZipWriter(&buf).Write(ctx, all); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Merge overlays the fixed text of a report on the original project files, so
// that the output is the complete fixed project.
func Merge(original map[string][]byte, fixed map[string]string) map[string][]byte {
	out := make(map[string][]byte, len(original)+len(fixed))
	for k, v := range original {
		out[k] = v
	}
	for k, v := range fixed {
		out[k] = []byte(v)
	}
	return out
}

func sortedNames(files map[string][]byte) []string {
	names := make([]string, 0, len(files))
	for n := range files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func safeRel(name string) (string, error) {
	rel := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") || path.IsAbs(rel) {
		return "", fmt.Errorf("output path %q escapes the output root", name)
	}
	return rel, nil
}
