// Package config manages the oink configuration file.
//
// The file is YAML and holds the default receiver, the bridge server
// settings, discovery and timeout defaults, and metadata for receivers seen
// during discovery. Command line flags override file values.
//
// # Configuration File Location
//
//   - Linux: $XDG_CONFIG_HOME/oink/config.yaml or $HOME/.config/oink/config.yaml
//   - macOS: $HOME/.config/oink/config.yaml
//   - Windows: %LOCALAPPDATA%\oink\config.yaml
//
// # Usage Example
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.SetReceiverNickname("0009B0123456", "Living Room")
//	if err := cfg.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// Writes go to a temporary file that is renamed into place.
package config
