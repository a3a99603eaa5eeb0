// Package config provides configuration management for the wsrelay server.
//
// Configuration lives in a YAML file. Command-line flags override file values,
// and every field has a default so the file is optional.
//
// # Configuration File Location
//
// The default configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/wsrelay/config.yaml or $HOME/.config/wsrelay/config.yaml
//   - macOS: $HOME/.config/wsrelay/config.yaml
//   - Windows: %LOCALAPPDATA%\wsrelay\config.yaml
//
// # Usage Example
//
//	cfg, err := config.LoadOrDefault("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.Server.Port = 8080
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// Loading returns a fresh Config per call. Save is serialized with a mutex and
// writes atomically through a temporary file.
package config
