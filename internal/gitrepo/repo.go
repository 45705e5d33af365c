// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gitrepo drives a local checkout of the index repository through
// the git binary. It does not clone, fetch or push.
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/crates-admin/internal/index"
)

const binGit = "git"

// executor abstracts command execution for testing.
type executor interface {
	Output(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// Repository is a local checkout of the index.
type Repository struct {
	dir    string
	exec   executor
	logger *zap.Logger
}

// Open checks that dir is inside a git work tree and returns a Repository
// rooted there.
func Open(ctx context.Context, dir string, logger *zap.Logger) (*Repository, error) {
	return open(ctx, dir, &osExecutor{}, logger)
}

func open(ctx context.Context, dir string, exec executor, logger *zap.Logger) (*Repository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("opening index repository: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("opening index repository: %s is not a directory", dir)
	}
	r := &Repository{dir: dir, exec: exec, logger: logger}
	if _, err := r.git(ctx, "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", dir, err)
	}
	return r, nil
}

// Dir returns the root of the work tree.
func (r *Repository) Dir() string { return r.dir }

// Checkout moves the work tree to rev.
func (r *Repository) Checkout(ctx context.Context, rev string) error {
	if rev == "" {
		return errors.New("checkout: empty revision")
	}
	if _, err := r.git(ctx, "checkout", "--quiet", rev); err != nil {
		return fmt.Errorf("checking out %s: %w", rev, err)
	}
	return nil
}

// HeadOID returns the full object id of HEAD.
func (r *Repository) HeadOID(ctx context.Context) (string, error) {
	out, err := r.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// FilesModifiedSince lists work-tree-relative paths changed between since
// and HEAD. An empty since lists every file tracked at HEAD.
func (r *Repository) FilesModifiedSince(ctx context.Context, since string) ([]string, error) {
	var out []byte
	var err error
	if since == "" {
		out, err = r.git(ctx, "ls-tree", "-r", "-z", "--name-only", "HEAD")
	} else {
		out, err = r.git(ctx, "diff", "--name-only", "-z", since, "HEAD")
	}
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	var files []string
	for _, name := range strings.Split(string(out), "\x00") {
		if name != "" {
			files = append(files, name)
		}
	}
	return files, nil
}

// IndexFile returns the absolute path of the index file for crate name.
func (r *Repository) IndexFile(name string) string {
	return filepath.Join(r.dir, index.RelativeIndexFile(name))
}

func (r *Repository) git(ctx context.Context, args ...string) ([]byte, error) {
	r.logger.Debug("running git", zap.Strings("args", args), zap.String("dir", r.dir))
	return r.exec.Output(ctx, r.dir, binGit, args...)
}
