// Package benchmark provides performance benchmarks for protobee.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run only the engine or only the RPC path:
//
//	go test -bench=BenchmarkEngine -benchmem -benchtime=10s ./internal/tests/benchmark/...
//	go test -bench=BenchmarkClient -benchmem ./internal/tests/benchmark/...
//
// Compare results:
//
//	go test -bench=. -benchmem -count=5 ./internal/tests/benchmark/... | tee new.txt
//	benchstat old.txt new.txt
package benchmark
