// Package output renders protobee-cli results as a table, JSON or YAML.
//
// Values stored in a bee are raw JSON; every format prints them as JSON
// text (table) or as structured data (json, yaml).
package output
