package api

// Version is the agent version reported by health and status queries.
// Overridden at build time via -ldflags "-X .../internal/api.Version=...".
var Version = "0.1.0"
