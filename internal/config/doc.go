// Package config defines configuration structures for the buildfetch CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (BUILDFETCH_ prefix, .env file supported)
//   - YAML configuration file
//
// Precedence is flags > environment > file > defaults; the cmd package
// applies the layers in that order using Merge.
package config
