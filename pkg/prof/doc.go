// Package prof records runtime profiles of the firmware task loop.
//
// Profiling is compiled in only with the "profile" build tag:
//
//	go build -tags profile ./cmd/hoodloader
//
// Without the tag [Start] returns a no-op stop function, so call sites stay
// in place at zero cost. A session writes a CPU profile for its whole
// duration and snapshot profiles (heap, mutex, block) when stopped:
//
//	stop, err := prof.Start(prof.Options{CPU: "cpu.prof", Mutex: "mutex.prof"})
//	if err != nil {
//	    return err
//	}
//	defer stop()
//
// The mutex profile is the interesting one for the bridge: it shows how long
// the UART receive goroutine waits on the ring buffer lock.
package prof
