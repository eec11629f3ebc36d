// Package builtin provides the default tool set used by runmesh runs:
//
//   - repo.read          read a file from the session's repository (scope repo.read)
//   - github.pr.create   open a pull request and record it as a run artifact (scope git.write)
//   - chat.send          post a chat message through Slack (scope chat.write)
//   - ci.trigger         queue a CI pipeline (scope ci.trigger)
//
// The source-control and CI integrations are placeholders that return
// deterministic results; chat.send talks to Slack when a client is configured.
package builtin
