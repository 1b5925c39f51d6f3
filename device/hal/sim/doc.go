// Package sim provides an in-memory [hal.Transport] with a host handle.
//
// The device side implements [hal.Transport]. The host side posts control
// requests ([Transport.Post], [Transport.Control]), queues OUT packets
// ([Transport.Send], [Transport.SendPacket]), inspects committed IN packets
// including zero-length packets ([Transport.Packets]) and forces state
// changes ([Transport.SetState]).
//
// [Transport.Port] wraps the host side as an [io.ReadWriter] with serial
// port read semantics so that host tooling can be exercised end to end
// against the firmware without hardware.
package sim
