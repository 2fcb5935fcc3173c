// Package command defines the protobee-cli commands on urfave/cli/v2.
//
// Every command opens one client connection, runs a single operation (or
// one atomic batch) and prints the result in the selected output format.
package command
