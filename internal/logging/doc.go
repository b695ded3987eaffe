// Package logging configures structured JSON logging for amanrag.
//
// Logs go to stderr by default. When a file path is configured, records are
// also written to a size-rotated file under ~/.amanrag/logs/. Stdio transports
// (MCP) must never log to stdout or stderr, so they use a file-only setup.
package logging
