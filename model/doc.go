// Package model defines the provider-agnostic completion interface runmesh
// uses for LLM-backed planning, plus a MockModel for tests.
//
// Providers (Anthropic, OpenAI) implement Model in their own subpackages so
// the planner stays decoupled from vendor SDKs.
package model
