// Package hal defines the boundary between the firmware core and the USB
// device controller.
//
// The [Transport] interface exposes exactly what a LUFA-style CDC task
// observes of the controller: class control requests, bank-level access to
// the bulk OUT and IN endpoints, and the device state. Everything beneath it
// (enumeration, descriptors, standard requests, endpoint configuration) is
// the transport's business.
//
// # Banks
//
// Bulk endpoints are modelled as a single bank each. The firmware polls
// [Transport.OUTReceived], copies the packet with [Transport.ReadOUT] and
// returns the bank with [Transport.ReleaseOUT]. On the IN side it polls
// [Transport.INReady] and commits one packet per [Transport.WriteIN]; an
// empty packet is a zero-length packet (ZLP).
//
// # Implementations
//
//   - [github.com/ardnew/hoodloader/device/hal/sim]: in-memory transport
//     with host-side controls, for tests and the virtual serial link
//   - [github.com/ardnew/hoodloader/device/hal/fifo]: named-pipe transport
//     shared with a host process, enumerated through
//     [github.com/ardnew/hoodloader/device/hal/enum]
package hal
