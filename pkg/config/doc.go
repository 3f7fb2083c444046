// Package config loads the service configuration from a YAML file.
package config
