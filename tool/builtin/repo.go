package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/runmesh/tool"
)

// Tool names and scopes.
const (
	RepoReadTool  = "repo.read"
	RepoReadScope = "repo.read"
)

// ErrPathEscapesRoot is returned when a requested path leaves the repository root.
var ErrPathEscapesRoot = errors.New("path escapes repository root")

// RepoSource reads files from a repository checkout.
type RepoSource interface {
	ReadFile(ctx context.Context, repoID, path string) ([]byte, error)
}

// DirSource serves files from <Root>/<repoID>/.
type DirSource struct {
	Root string
}

// ReadFile reads path relative to the repository directory. Both repoID and
// path must stay inside their parent: the repository below Root, the file
// below the repository.
func (s DirSource) ReadFile(_ context.Context, repoID, path string) ([]byte, error) {
	root := filepath.Clean(s.Root)

	base := filepath.Join(root, filepath.FromSlash(repoID))
	if base == root || !within(root, base) {
		return nil, fmt.Errorf("%w: repo %q", ErrPathEscapesRoot, repoID)
	}

	full := filepath.Join(base, filepath.FromSlash(path))
	if !within(base, full) {
		return nil, fmt.Errorf("%w: %s", ErrPathEscapesRoot, path)
	}

	return os.ReadFile(full)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// MapSource serves files from memory, keyed by path. The same files are
// returned for every repository.
type MapSource map[string]string

// ReadFile returns the stored content or fs.ErrNotExist.
func (s MapSource) ReadFile(_ context.Context, _ string, path string) ([]byte, error) {
	content, ok := s[path]
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, os.ErrNotExist)
	}
	return []byte(content), nil
}

// NewRepoRead returns the repo.read tool. Output: {"path", "content"}.
func NewRepoRead(src RepoSource) *tool.Tool {
	return tool.MustNew(tool.Contract{
		Name:         RepoReadTool,
		Description:  "Read a file from the session repository",
		RequiredKeys: []string{"path"},
		Scopes:       []string{RepoReadScope},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "minLength": 1},
			},
		},
	}, func(tc *tool.ToolContext, payload map[string]any) (map[string]any, error) {
		path, _ := payload["path"].(string)

		data, err := src.ReadFile(tc.Context(), tc.RepoID(), path)
		if err != nil {
			return nil, err
		}

		return map[string]any{"path": path, "content": string(data)}, nil
	})
}
