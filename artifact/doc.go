// Package artifact contains implementations of core.ArtifactStore.
//
// Artifacts are opaque byte blobs a tool produces during a run (a rendered
// diff, a pull request description, a log excerpt). They are scoped by run id
// so the control plane can list everything a run produced.
package artifact
