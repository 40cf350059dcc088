// Package tlsutil builds the hardened transport the gateway's upstream
// provider clients (gemini, vertexai, openrouter) share, so every outbound
// call to a model provider negotiates the same TLS floor instead of each
// adapter constructing its own http.Client from scratch.
package tlsutil
