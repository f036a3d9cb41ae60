// affinity_linux.go - Linux CPU affinity via sched_setaffinity(2)

//go:build linux

package workers

import "golang.org/x/sys/unix"

// setAffinity pins the calling thread to cpu. Failure leaves it unpinned.
func setAffinity(cpu int) {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	_ = unix.SchedSetaffinity(0, &set)
}
