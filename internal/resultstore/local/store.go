// Package local implements a result store on the local filesystem, one
// JSON document per job.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/newsworthy/news-agent/internal/news"
)

// Config captures the parameters for the local result store.
type Config struct {
	// BaseDir is the directory holding per-job result files.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// Store persists aggregates as <base_dir>/<job_id>.json.
type Store struct {
	baseDir string
}

var _ news.ResultStore = (*Store)(nil)

// New creates the store, verifying the directory exists and is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("clean up test file: %w", err)
	}
	return &Store{baseDir: cfg.BaseDir}, nil
}

// Store writes the aggregate and returns a file:// reference.
func (s *Store) Store(_ context.Context, jobID string, agg news.Aggregate) (string, error) {
	path, err := s.resultPath(jobID)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return "", news.NewError(news.KindStorage, "encode aggregate", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", news.NewError(news.KindStorage, "write result file", err)
	}
	return "file://" + path, nil
}

// Retrieve reads a previously stored aggregate.
func (s *Store) Retrieve(_ context.Context, jobID string) (news.Aggregate, error) {
	path, err := s.resultPath(jobID)
	if err != nil {
		return news.Aggregate{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return news.Aggregate{}, news.Errorf(news.KindNotFound, "no result for job %s", jobID)
		}
		return news.Aggregate{}, news.NewError(news.KindStorage, "read result file", err)
	}
	var agg news.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return news.Aggregate{}, news.NewError(news.KindStorage, "decode result file", err)
	}
	return agg, nil
}

// LoadExisting scans the base directory for result files written by earlier
// runs. Files that fail to decode are skipped, not fatal, so one corrupt
// record cannot block startup.
func (s *Store) LoadExisting(_ context.Context) ([]news.Aggregate, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, news.NewError(news.KindStorage, "scan result directory", err)
	}
	var out []news.Aggregate
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, e.Name()))
		if err != nil {
			continue
		}
		var agg news.Aggregate
		if err := json.Unmarshal(data, &agg); err != nil || agg.JobID == "" {
			continue
		}
		out = append(out, agg)
	}
	return out, nil
}

// Ref returns the file:// reference a stored job resolves to.
func (s *Store) Ref(jobID string) (string, error) {
	path, err := s.resultPath(jobID)
	if err != nil {
		return "", err
	}
	return "file://" + path, nil
}

// resultPath builds the per-job file path, rejecting ids that would escape
// the base directory.
func (s *Store) resultPath(jobID string) (string, error) {
	if strings.TrimSpace(jobID) == "" {
		return "", news.Errorf(news.KindStorage, "job id is required")
	}
	fullPath := filepath.Join(s.baseDir, jobID+".json")
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", news.Errorf(news.KindStorage, "job id escapes the result directory")
	}
	return fullPath, nil
}
