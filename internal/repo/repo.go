package repo

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/rs/zerolog/log"
)

// Service fetches remote repositories for analysis
type Service struct {
	baseDir string
	token   string
}

// NewService creates a service that clones into baseDir
func NewService(baseDir, token string) *Service {
	return &Service{
		baseDir: baseDir,
		token:   token,
	}
}

// Info contains parsed repository information
type Info struct {
	Host     string
	Owner    string
	Name     string
	URL      string
	CloneURL string
	Branch   string
}

// Checkout is a local working copy
type Checkout struct {
	Path      string
	CommitSHA string
	Branch    string
}

// IsRemote reports whether s looks like a clonable URL rather than a path
func IsRemote(s string) bool {
	return strings.HasPrefix(s, "git@") ||
		strings.HasPrefix(s, "https://") ||
		strings.HasPrefix(s, "http://")
}

// ParseURL parses an https or scp-style git URL
func ParseURL(rawURL string) (*Info, error) {
	// git@host:owner/repo.git
	if strings.HasPrefix(rawURL, "git@") {
		hostAndPath := strings.TrimPrefix(rawURL, "git@")
		parts := strings.SplitN(hostAndPath, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid SSH URL format: %s", rawURL)
		}
		pathParts := strings.Split(strings.TrimSuffix(parts[1], ".git"), "/")
		if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] == "" {
			return nil, fmt.Errorf("invalid repo path: %s", parts[1])
		}
		return &Info{
			Host:     parts[0],
			Owner:    pathParts[0],
			Name:     pathParts[1],
			URL:      rawURL,
			CloneURL: fmt.Sprintf("https://%s/%s/%s.git", parts[0], pathParts[0], pathParts[1]),
		}, nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, fmt.Errorf("unsupported URL scheme: %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("missing host in URL: %s", rawURL)
	}

	pathParts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(pathParts) < 2 {
		return nil, fmt.Errorf("invalid repo path: %s", parsed.Path)
	}

	owner := pathParts[0]
	name := strings.TrimSuffix(pathParts[1], ".git")

	info := &Info{
		Host:     parsed.Host,
		Owner:    owner,
		Name:     name,
		URL:      rawURL,
		CloneURL: fmt.Sprintf("%s://%s/%s/%s.git", parsed.Scheme, parsed.Host, owner, name),
	}

	// https://host/owner/repo/tree/<branch>
	if len(pathParts) >= 4 && pathParts[2] == "tree" {
		info.Branch = strings.Join(pathParts[3:], "/")
	}

	return info, nil
}

// Clone makes a shallow clone of the repository under the base directory,
// replacing any earlier checkout of it.
func (s *Service) Clone(ctx context.Context, info *Info) (*Checkout, error) {
	repoDir := filepath.Join(s.baseDir, info.Host, info.Owner, info.Name)

	if _, err := os.Stat(repoDir); err == nil {
		log.Debug().Str("path", repoDir).Msg("removing existing checkout")
		if err := os.RemoveAll(repoDir); err != nil {
			return nil, fmt.Errorf("failed to remove existing directory: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(repoDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	log.Info().
		Str("url", info.CloneURL).
		Str("path", repoDir).
		Msg("cloning repository")

	cloneOpts := &git.CloneOptions{
		URL:   info.CloneURL,
		Depth: 1,
	}

	if s.token != "" {
		cloneOpts.Auth = &http.BasicAuth{
			Username: "git",
			Password: s.token,
		}
	}

	if info.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(info.Branch)
		cloneOpts.SingleBranch = true
	}

	repo, err := git.PlainCloneContext(ctx, repoDir, false, cloneOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", info.CloneURL, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD: %w", err)
	}

	checkout := &Checkout{
		Path:      repoDir,
		CommitSHA: head.Hash().String(),
		Branch:    head.Name().Short(),
	}

	log.Info().
		Str("commit", shortSHA(checkout.CommitSHA)).
		Str("branch", checkout.Branch).
		Msg("clone complete")

	return checkout, nil
}

// Revision returns the HEAD commit of the git repository containing path.
// It returns an empty string when path is not inside a repository.
func Revision(path string) string {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}
