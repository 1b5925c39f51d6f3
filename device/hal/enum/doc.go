// Package enum answers USB standard requests for the CDC-ACM function.
//
// Transports that sit on a real or emulated bus use a [Handler] to satisfy
// enumeration beneath the [github.com/ardnew/hoodloader/device/hal.Transport]
// boundary, so the firmware core only sees class requests. [Function] holds
// the descriptor set: a communication interface with the notification
// endpoint, and a data interface with the bulk OUT and IN endpoints.
//
// The package also provides the request builders and descriptor parsers a
// host needs to enumerate the device.
package enum
