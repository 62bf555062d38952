package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/poiesic/ragpipe/core"
	"golang.org/x/text/encoding/charmap"
)

// Metadata keys describing an uploaded file.
const (
	KeyFileName      = "file_name"
	KeyFilePath      = "file_path"
	KeyFileSize      = "file_size"
	KeyFileExtension = "file_extension"
)

// DefaultExtensions are the file types UploadDirectory picks up when none are given.
var DefaultExtensions = []string{".txt", ".md", ".py", ".js", ".ts", ".html", ".css", ".json"}

// FileResult is the outcome of one file in a directory upload.
type FileResult struct {
	File  string `json:"file"`
	DocID string `json:"doc_id,omitempty"`
	Err   error  `json:"-"`
}

// UploadFile reads path and uploads its contents. Files that are not valid
// UTF-8 are decoded as Latin-1. Caller metadata overrides the file fields,
// and source defaults to the file name.
func (u *Uploader) UploadFile(ctx context.Context, path string, opts ...UploadOption) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	text, err := readText(path)
	if err != nil {
		return "", err
	}

	fileMetadata := core.Metadata{
		KeyFileName:      core.String(info.Name()),
		KeyFilePath:      core.String(path),
		KeyFileSize:      core.Number(float64(info.Size())),
		KeyFileExtension: core.String(filepath.Ext(path)),
		core.KeySource:   core.String(info.Name()),
	}
	return u.Upload(ctx, text, append([]UploadOption{WithMetadata(fileMetadata)}, opts...)...)
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return string(decoded), nil
}

// UploadDirectory uploads every file under dir whose extension is in exts,
// or in DefaultExtensions when exts is empty. Files are processed on the
// uploader's pool. A file that fails is logged and reported in its result;
// the others still run. Results are ordered by path.
func (u *Uploader) UploadDirectory(ctx context.Context, dir string, exts ...string) ([]FileResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	files, err := collectFiles(dir, normalizeExtensions(exts))
	if err != nil {
		return nil, err
	}
	pool, err := u.workers()
	if err != nil {
		return nil, err
	}
	u.logger.Info("uploading directory", "dir", dir, "files", len(files))

	var progress *ProgressTracker
	if u.progress != nil {
		progress = NewProgressTracker(u.progress, len(files), 1)
		progress.Start()
	}

	results := make([]FileResult, len(files))
	var wg sync.WaitGroup
	for i, file := range files {
		results[i].File = file
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			docID, err := u.UploadFile(ctx, file)
			if err != nil {
				u.logger.Error("failed to upload file", "file", file, "err", err)
				results[i].Err = err
			} else {
				u.logger.Info("uploaded file", "file", file, "doc_id", docID)
				results[i].DocID = docID
			}
			if progress != nil {
				progress.Increment(1)
			}
		})
		if submitErr != nil {
			wg.Done()
			results[i].Err = submitErr
		}
	}
	wg.Wait()

	if progress != nil {
		progress.Finish()
	}

	uploaded := 0
	for _, r := range results {
		if r.Err == nil {
			uploaded++
		}
	}
	u.logger.Info("uploaded directory", "dir", dir, "uploaded", uploaded, "failed", len(results)-uploaded)
	return results, nil
}

func normalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		return DefaultExtensions
	}
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func collectFiles(dir string, exts []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", dir, err)
	}
	slices.Sort(files)
	return files, nil
}
