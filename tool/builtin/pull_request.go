package builtin

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/runmesh/tool"
)

// Tool names and scopes.
const (
	PullRequestTool  = "github.pr.create"
	PullRequestScope = "git.write"
)

// PullRequestArtifact is the artifact id under which the created pull request is saved.
const PullRequestArtifact = "pull_request.json"

// NewPullRequest returns the github.pr.create tool. It numbers pull requests
// per repository starting at 1 and returns {"url", "number", "title"}.
func NewPullRequest() *tool.Tool {
	var (
		mu      sync.Mutex
		numbers = map[string]int{}
	)

	return tool.MustNew(tool.Contract{
		Name:         PullRequestTool,
		Description:  "Open a pull request against the repository",
		RequiredKeys: []string{"repo", "title", "head", "base"},
		Scopes:       []string{PullRequestScope},
	}, func(tc *tool.ToolContext, payload map[string]any) (map[string]any, error) {
		repo := fmt.Sprint(payload["repo"])

		mu.Lock()
		numbers[repo]++
		number := numbers[repo]
		mu.Unlock()

		out := map[string]any{
			"url":    fmt.Sprintf("https://github.com/%s/pull/%d", repo, number),
			"number": number,
			"title":  payload["title"],
			"head":   payload["head"],
			"base":   payload["base"],
		}

		data, err := json.Marshal(out)
		if err != nil {
			return nil, err
		}
		if err := tc.SaveArtifact(PullRequestArtifact, data); err != nil && !errors.Is(err, tool.ErrNoArtifactStore) {
			return nil, err
		}

		return out, nil
	})
}
