// Package config loads the relay configuration.
//
// Configuration is a YAML file. Before parsing, variables from a .env file in
// the working directory (if present) are added to the environment and ${VAR}
// references in the file are expanded. Unset optional fields receive the
// defaults in defaults.go, then Validate checks the result.
package config
