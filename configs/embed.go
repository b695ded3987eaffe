// Package configs provides embedded configuration templates for amanrag.
//
// Templates are embedded at build time so `amanrag config init` works from
// any installation. Values mirror the defaults in internal/config NewConfig;
// edit the .yaml files here and rebuild to change them.
package configs

import _ "embed"

// ProjectConfigTemplate is written to .amanrag.yaml by `amanrag config init`.
// It holds artifact paths and retrieval tuning that travel with a corpus.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string

// UserConfigTemplate is written to ~/.config/amanrag/config.yaml by
// `amanrag config init --user`. It holds machine settings such as model
// hosts.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
