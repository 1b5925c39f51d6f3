// Package uart is the serial side of the bridge: the hardware UART the
// firmware forwards host bytes to and receives target bytes from.
//
// [Port] is the collaborator boundary used by the device core. [Serial]
// drives a real port through go.bug.st/serial and [Virtual] records traffic
// for tests and headless runs.
package uart
