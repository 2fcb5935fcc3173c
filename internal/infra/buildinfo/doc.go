// Package buildinfo reports the protobee version.
//
// Version, Commit and BuildTime are injected with ldflags:
//
//	go build -ldflags "-X github.com/LuKks/protobee/internal/infra/buildinfo.Version=v1.0.0"
package buildinfo
