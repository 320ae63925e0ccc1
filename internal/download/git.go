package download

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
	"github.com/Guliveer/steam-gameloader-go/internal/logger"
)

// GitRunner runs git with the given arguments.
type GitRunner interface {
	Run(ctx context.Context, args ...string) error
}

// ExecGit runs the git executable found on PATH.
type ExecGit struct{}

func (ExecGit) Run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("git %s: %w", args[0], err)
		}
		return fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return nil
}

// GitAvailable reports whether `git --version` succeeds.
func GitAvailable(ctx context.Context, git GitRunner) bool {
	if git == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return git.Run(ctx, "--version") == nil
}

func isPayload(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".lua") || strings.HasSuffix(lower, ".manifest")
}

// payloadFiles lists the .lua/.manifest files under dir whose name
// contains filter (all of them when filter is empty).
func payloadFiles(afs afero.Fs, dir, filter string) []string {
	var files []string
	_ = afero.Walk(afs, dir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if isPayload(info.Name()) && (filter == "" || strings.Contains(info.Name(), filter)) {
			files = append(files, path)
		}
		return nil
	})
	return files
}

// GitBranchStrategy shallow-clones a branch named after the AppID.
type GitBranchStrategy struct {
	fs      afero.Fs
	git     GitRunner
	repos   []string
	timeout time.Duration
	log     *logger.Logger
}

// NewGitBranchStrategy creates the branch-clone stage.
func NewGitBranchStrategy(fs afero.Fs, git GitRunner, repos []string, log *logger.Logger) *GitBranchStrategy {
	return &GitBranchStrategy{fs: fs, git: git, repos: repos, timeout: constants.GitTimeout, log: log}
}

func (s *GitBranchStrategy) Name() string { return "git_branch" }

func (s *GitBranchStrategy) Attempt(ctx context.Context, req Request) (*Attempt, error) {
	if !GitAvailable(ctx, s.git) {
		return nil, fmt.Errorf("%w: git is not available", ErrNoContent)
	}

	for i, repo := range s.repos {
		dir := filepath.Join(req.WorkDir, fmt.Sprintf("branch_%d", i))
		cloneCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.git.Run(cloneCtx, "clone", "--depth", "1", "--branch", req.AppID, "--single-branch", repo, dir)
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			s.log.Debug("Branch clone failed", "repo", repo, "appid", req.AppID, "error", err)
			_ = s.fs.RemoveAll(dir)
			continue
		}

		if files := payloadFiles(s.fs, dir, ""); len(files) > 0 {
			s.log.Info("Branch clone found payload", "repo", repo, "appid", req.AppID, "files", len(files))
			return &Attempt{Source: constants.SourceGitBranch, Path: dir, Available: []string{constants.SourceGitBranch}}, nil
		}
		s.log.Warn("Branch clone has no payload", "repo", repo, "appid", req.AppID)
		_ = s.fs.RemoveAll(dir)
	}
	return nil, fmt.Errorf("%w: no repository has branch %s", ErrNoContent, req.AppID)
}

// GitCloneStrategy clones the default branch of each repository and keeps
// the payload files whose name contains the AppID.
type GitCloneStrategy struct {
	fs      afero.Fs
	git     GitRunner
	repos   []string
	timeout time.Duration
	log     *logger.Logger
}

// NewGitCloneStrategy creates the full-clone stage.
func NewGitCloneStrategy(fs afero.Fs, git GitRunner, repos []string, log *logger.Logger) *GitCloneStrategy {
	return &GitCloneStrategy{fs: fs, git: git, repos: repos, timeout: constants.GitTimeout, log: log}
}

func (s *GitCloneStrategy) Name() string { return "git_clone" }

func (s *GitCloneStrategy) Attempt(ctx context.Context, req Request) (*Attempt, error) {
	if !GitAvailable(ctx, s.git) {
		return nil, fmt.Errorf("%w: git is not available", ErrNoContent)
	}

	matches := filepath.Join(req.WorkDir, "clone_matches")
	for i, repo := range s.repos {
		dir := filepath.Join(req.WorkDir, fmt.Sprintf("clone_%d", i))
		cloneCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.git.Run(cloneCtx, "clone", "--depth", "1", repo, dir)
		cancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			s.log.Debug("Clone failed", "repo", repo, "error", err)
			_ = s.fs.RemoveAll(dir)
			continue
		}

		files := payloadFiles(s.fs, dir, req.AppID)
		if len(files) == 0 {
			_ = s.fs.RemoveAll(dir)
			continue
		}
		if err := s.collect(files, matches); err != nil {
			return nil, err
		}
		_ = s.fs.RemoveAll(dir)
		s.log.Info("Clone found payload", "repo", repo, "appid", req.AppID, "files", len(files))
		return &Attempt{Source: constants.SourceGitTraditional, Path: matches, Available: []string{constants.SourceGitTraditional}}, nil
	}
	return nil, fmt.Errorf("%w: no repository file mentions %s", ErrNoContent, req.AppID)
}

func (s *GitCloneStrategy) collect(files []string, dest string) error {
	if err := s.fs.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	for _, f := range files {
		data, err := afero.ReadFile(s.fs, f)
		if err != nil {
			return fmt.Errorf("reading %s: %w", f, err)
		}
		if err := afero.WriteFile(s.fs, filepath.Join(dest, filepath.Base(f)), data, 0o644); err != nil {
			return fmt.Errorf("copying %s: %w", f, err)
		}
	}
	return nil
}
