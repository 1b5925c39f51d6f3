// Package programmer is a host-side client for AVR109 bootloaders such as
// the programmer mode of the hoodloader device.
//
// A Programmer wraps any io.ReadWriter with serial-port read semantics: a
// go.bug.st/serial port opened with [OpenSerial], a FIFO connection from
// device/hal/fifo, or the simulated port of device/hal/sim.
//
//	port, err := programmer.OpenSerial("/dev/ttyACM0")
//	if err != nil {
//	    return err
//	}
//	defer port.Close()
//
//	prog := programmer.New(port, programmer.WithSignature(nvm.ATmega16U2.Signature))
//	if err := prog.Program(ctx, image); err != nil {
//	    return err
//	}
//	return prog.Exit(ctx)
package programmer
