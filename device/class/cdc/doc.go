// Package cdc holds the USB Communications Device Class (CDC-ACM) request
// codes and the line coding structure exchanged through
// SET_LINE_CODING / GET_LINE_CODING.
//
// Only the parts of CDC-ACM that the bridge observes are defined here.
// Enumeration and descriptors belong to the transport.
package cdc
