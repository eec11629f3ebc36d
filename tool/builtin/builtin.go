package builtin

import "github.com/hupe1980/runmesh/tool"

// Options configures the default tool set.
type Options struct {
	Source RepoSource
	Chat   MessagePoster
}

// DefaultScopes covers the repository tools the rule planner emits: reading
// files and opening pull requests. Chat and CI need explicit grants.
var DefaultScopes = []string{RepoReadScope, PullRequestScope}

// NewRegistry returns a registry holding every builtin tool.
func NewRegistry(optFns ...func(o *Options)) (*tool.Registry, error) {
	opts := Options{Source: MapSource{"README.md": "# README\n"}}
	for _, fn := range optFns {
		fn(&opts)
	}

	return tool.NewRegistry(
		NewRepoRead(opts.Source),
		NewPullRequest(),
		NewChatSend(opts.Chat),
		NewCITrigger(),
	)
}
