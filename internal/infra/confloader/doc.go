// Package confloader loads configuration with koanf.
//
// Sources, highest priority first:
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (PROTOBEE_SECTION_KEY)
//  3. The YAML configuration file
//  4. Defaults already present in the target struct
//
// Watcher reports changes to the configuration file so that settings that
// can change at runtime, such as the log level, are reapplied.
package confloader
