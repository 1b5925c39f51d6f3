// Package device implements the firmware core of a dual-mode USB CDC
// device: a transparent USB-to-UART bridge that turns into an AVR109
// programmer when the host opens the port at a sentinel baud rate.
//
// # Architecture
//
//   - [Channel] holds the state of the single virtual serial channel: mode,
//     line coding, the bridge [Ring] and the AVR109 address counter
//   - [Negotiator] services the CDC class requests and switches modes
//   - [Bridge] moves bytes between the bulk endpoints and the UART
//   - [Processor] executes AVR109 commands against an [nvm.Store]
//   - [Firmware] is the cooperative task loop tying them together
//
// The USB transport is consumed through [hal.Transport]; enumeration and
// standard requests live below it.
//
// # Concurrency
//
// Two contexts touch the channel. The UART receive callback
// ([Bridge.Produce]) appends to the ring; everything else runs on the task
// loop goroutine inside [Firmware.Run]. The ring holds its lock for one
// step at a time and the mode is atomic. Endpoint waits poll until ready and
// give up when the transport reports the device unattached or suspended.
//
// # Programming flow
//
// A host selects programmer mode with SET_LINE_CODING at 57600 baud. Each
// OUT packet then starts one command; parameters may span packets and the
// response is flushed before the packet is released. Exit detaches the
// device and arms the watchdog.
package device
