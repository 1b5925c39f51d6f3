// Package nvm models the nonvolatile memory of a USB AVR as seen through
// its self-programming (SPM) interface.
//
// [Store] is the boundary the AVR109 command processor drives: page erase,
// page buffer fill, page write, RWW re-enable, byte-wise EEPROM access and
// fuse/lock reads. [Memory] implements it in RAM with the constraints of the
// real hardware, and [LoadFile]/[SaveFile] persist its regions as raw binary
// images.
package nvm
