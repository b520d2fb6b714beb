// Package config provides loading and environment overlay for sharedlog
// configuration: container defaults (durability, geometry, rebuild
// attempts), logging, daemon addresses and the containers the daemon hosts.
//
// Example:
//
//	cfg := config.Default()
//	// Optionally load from file and overlay env vars
//	if fileCfg, err := config.Load("/etc/sharedlog.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	if err := cfg.Validate(); err != nil {
//	    return err
//	}
package config
