// affinity_stub.go - CPU affinity no-op where sched_setaffinity(2) is missing

//go:build !linux

package workers

//go:nosplit
//go:inline
func setAffinity(cpu int) {}
