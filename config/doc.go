// Package config provides storage configuration with layered resolution.
//
// Values resolve in order of precedence:
//  1. Environment variables with the SCRIBE_ prefix
//  2. A YAML config file, when one is given to Load
//  3. Built-in defaults
//
// Example usage:
//
//	cfg, err := config.Load("scribe.yaml")
//	if err != nil {
//	    return err
//	}
//	files := filestore.New(db, cfg, logger)
package config
