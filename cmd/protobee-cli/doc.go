// Package main provides the entry point for protobee-cli.
//
// protobee-cli reads and writes a remote protobee over the same encrypted
// RPC connection the Go client uses:
//
//	protobee-cli config set server_key <hex>
//	protobee-cli config set client_key <hex>
//	protobee-cli put /users/1 '{"name":"ana"}'
//	protobee-cli scan --gte /users/ --lt /users0 -o json
//	protobee-cli batch a=1 b=2 --del c
package main
