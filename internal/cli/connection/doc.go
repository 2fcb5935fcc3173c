// Package connection opens the protobee client used by protobee-cli.
package connection
