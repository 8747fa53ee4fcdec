// Package config loads, validates and hot-reloads the service's YAML
// configuration file. This is the service's own runtime configuration (ports,
// storage backend, engine batching); the user-editable scoring reference
// tables live in the relational store, not here.
package config
