// Package model defines the provider agnostic abstractions for talking to
// language models.
//
// Core goals:
//   - A single request/response contract (Backend) covering terminal answers
//     and capability call requests
//   - Normalized capability schemas (ToolDefinition) and calls (core.CapabilityCall)
//   - Lightweight scripting of model behaviour for tests (ScriptedModel, FuncModel)
//
// Providers (OpenAI and Azure OpenAI / DeepSeek compatible endpoints,
// Anthropic) live in sub packages and implement Backend so agents remain
// decoupled from vendor SDKs.
package model
