package core

// SessionStatusActive is the status every new session starts in.
const SessionStatusActive = "active"

// Session binds a client to a repository across many runs. Status is a plain
// string so further lifecycle states can be introduced without a schema change.
type Session struct {
	ID     string `json:"id"`
	RepoID string `json:"repo_id"`
	Status string `json:"status"`
}

// Repo is a registered source repository.
type Repo struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
