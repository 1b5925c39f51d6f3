// Package fifo implements a [hal.Transport] over named pipes (FIFOs), so a
// firmware process and a host process can talk without USB hardware.
//
// # Architecture
//
// Each device instance creates a unique subdirectory under a shared bus
// directory:
//
//	/tmp/hoodloader-bus/             # Bus directory (shared with host)
//	└── device-{uuid}/               # Device subdirectory (unique per device)
//	    ├── connection               # Attach/detach signalling (device → host)
//	    ├── host_to_device           # SETUP requests and bus events
//	    ├── device_to_host           # Control responses (DATA/ACK/STALL)
//	    ├── ep2_out                  # Bulk OUT packets
//	    └── ep3_in                   # Bulk IN packets
//
// Every message is framed as a type byte followed by a little-endian
// 16-bit payload length. A DATA message with an empty payload on ep3_in is
// a zero-length packet.
//
// The UUID is generated using crypto/rand, so parallel tests can share one
// bus directory.
//
// # Bus events
//
// The host drives the device state with reset, suspend and resume messages
// on host_to_device, and the device acknowledges each one. Address and
// configuration follow from standard requests (SET_ADDRESS,
// SET_CONFIGURATION), which the transport answers itself from the CDC-ACM
// descriptor set in [github.com/ardnew/hoodloader/device/hal/enum]. Only
// class requests reach [HAL.PollSetup]. The device signals attach (0x01) and
// detach (0x00) on the connection FIFO.
//
// # Usage
//
// Device side:
//
//	tr := fifo.New("/tmp/hoodloader-bus")
//	if err := tr.Start(ctx); err != nil {
//	    return err
//	}
//	defer tr.Close()
//	fw := device.New(tr, store, port)
//	fw.Run(ctx)
//
// Host side:
//
//	dir, _ := fifo.Find(ctx, "/tmp/hoodloader-bus")
//	conn, _ := fifo.Dial(ctx, dir)
//	defer conn.Close()
//	conn.Open(ctx, 57600)
//	conn.Write([]byte{'S'})
package fifo
