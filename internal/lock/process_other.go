//go:build !unix

package lock

// processAlive cannot probe other processes here; staleness falls back to age.
func processAlive(pid int) bool {
	return pid > 0
}
