// Package board holds the pin-level collaborators of the firmware: the
// target reset line driven by DTR, the TX/RX activity LEDs and the watchdog
// that resets the device after a programming session.
//
// GPIO-backed implementations use periph.io and work on any pin the periph
// host drivers register, including FTDI adapter headers.
package board
