// Package audit measures the deployed code size of compiled contract
// artifacts and flags those above a size threshold.
package audit

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/epord/Plasma-Cash-RootChain/internal/artifact"
)

// DefaultConcurrency bounds the number of artifact files read at once.
const DefaultConcurrency = 8

var (
	// ErrDirectoryUnreadable is returned when the artifact directory does not
	// exist, is not a directory, or cannot be listed.
	ErrDirectoryUnreadable = errors.New("directory unreadable")
	// ErrInvalidThreshold is returned for a non-positive threshold.
	ErrInvalidThreshold = errors.New("threshold must be positive")
)

// MalformedPolicy decides what happens to artifacts that cannot be decoded.
type MalformedPolicy int

const (
	// Abort fails the audit on the first malformed artifact.
	Abort MalformedPolicy = iota
	// Skip logs a warning and leaves the artifact out of the report.
	Skip
)

// String returns the string representation of the policy.
func (p MalformedPolicy) String() string {
	switch p {
	case Abort:
		return "abort"
	case Skip:
		return "skip"
	default:
		return fmt.Sprintf("MalformedPolicy(%d)", int(p))
	}
}

// ParseMalformedPolicy parses "abort" or "skip".
func ParseMalformedPolicy(s string) (MalformedPolicy, error) {
	switch strings.ToLower(s) {
	case "", "abort":
		return Abort, nil
	case "skip":
		return Skip, nil
	default:
		return Abort, fmt.Errorf("unknown malformed artifact policy %q", s)
	}
}

// Options configures an audit.
type Options struct {
	// Threshold is the size limit in bytes. Required.
	Threshold int
	// OnMalformed defaults to Abort.
	OnMalformed MalformedPolicy
	// Concurrency defaults to DefaultConcurrency.
	Concurrency int
	Logger      *slog.Logger
}

// ArtifactError reports a file that could not be audited.
type ArtifactError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ArtifactError) Error() string {
	return fmt.Sprintf("artifact %s: %v", e.Path, e.Err)
}

// Unwrap implements the errors.Unwrap interface for error chaining.
func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// Entry is the audited size of one artifact.
type Entry struct {
	ContractName string `json:"contractName"`
	SizeBytes    int    `json:"sizeBytes"`
	OverLimit    bool   `json:"overLimit"`
	Path         string `json:"path"`
}

// SkippedArtifact is a malformed artifact left out under the Skip policy.
type SkippedArtifact struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report is the outcome of an audit. Entries are sorted by size, largest
// first, with ties broken by contract name.
type Report struct {
	Threshold int               `json:"threshold"`
	Entries   []Entry           `json:"entries"`
	Skipped   []SkippedArtifact `json:"skipped,omitempty"`
}

// OverLimit returns the entries above the threshold.
func (r *Report) OverLimit() []Entry {
	var over []Entry
	for _, e := range r.Entries {
		if e.OverLimit {
			over = append(over, e)
		}
	}
	return over
}

// Exit codes for the audit command.
const (
	ExitOK        = 0
	ExitOverLimit = 1
	ExitReadError = 2
)

// ExitCode returns ExitOverLimit if any entry is over the threshold.
func (r *Report) ExitCode() int {
	if len(r.OverLimit()) > 0 {
		return ExitOverLimit
	}
	return ExitOK
}

// ExitCodeFor maps an Audit error to an exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitOK
	}
	return ExitReadError
}

// Audit loads every *.json artifact in dir and reports its deployed code size.
// Subdirectories and other files are ignored. An empty directory yields an
// empty report. Under the Abort policy every file is still read, and the error
// for the lexically first unreadable artifact is returned.
func Audit(ctx context.Context, dir string, opts Options) (*Report, error) {
	if opts.Threshold <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidThreshold, opts.Threshold)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	paths, err := listArtifacts(dir)
	if err != nil {
		return nil, err
	}
	logger.Debug("auditing artifacts",
		slog.String("dir", dir),
		slog.Int("files", len(paths)),
		slog.Int("threshold", opts.Threshold),
	)

	report := &Report{Threshold: opts.Threshold, Entries: make([]Entry, 0, len(paths))}
	var mu sync.Mutex
	// One slot per path so the reported failure does not depend on scheduling.
	failures := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			a, err := artifact.Load(path)
			if err != nil {
				if opts.OnMalformed == Skip && errors.Is(err, artifact.ErrMalformedArtifact) {
					logger.Warn("skipping malformed artifact",
						slog.String("path", path),
						slog.String("error", err.Error()),
					)
					mu.Lock()
					report.Skipped = append(report.Skipped, SkippedArtifact{Path: path, Reason: err.Error()})
					mu.Unlock()
					return nil
				}
				failures[i] = &ArtifactError{Path: path, Err: err}
				return nil
			}

			size := a.DeployedBytecode.Size()
			mu.Lock()
			report.Entries = append(report.Entries, Entry{
				ContractName: a.ContractName,
				SizeBytes:    size,
				OverLimit:    size > opts.Threshold,
				Path:         path,
			})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, err := range failures {
		if err != nil {
			return nil, err
		}
	}

	slices.SortFunc(report.Entries, func(a, b Entry) int {
		if c := cmp.Compare(b.SizeBytes, a.SizeBytes); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ContractName, b.ContractName); c != 0 {
			return c
		}
		return cmp.Compare(a.Path, b.Path)
	})
	slices.SortFunc(report.Skipped, func(a, b SkippedArtifact) int {
		return cmp.Compare(a.Path, b.Path)
	})
	return report, nil
}

func listArtifacts(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnreadable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrDirectoryUnreadable, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnreadable, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	return paths, nil
}
