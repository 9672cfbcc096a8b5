// Package config loads and validates scout's TOML configuration.
//
// Configuration resolves from an explicit --config path, then
// ~/.config/scout/config.toml, then ./scout.toml, falling back to built-in
// defaults when no file exists. Paths support ~ expansion. Validation fails
// fast on non-positive intervals and out-of-range score defaults so the
// daemon never starts with a config it cannot honor.
package config
