// Package usbid names USB vendors and products from the usb.ids database
// distributed with most Linux systems.
package usbid

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultPaths lists the usual locations of usb.ids.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// Database maps vendor and product IDs to names. It is safe for concurrent
// use.
type Database struct {
	mu       sync.RWMutex
	vendors  map[uint16]string
	products map[uint32]string // vid<<16 | pid
}

// New returns a database seeded with the boards this firmware ships on, so
// lookups work even when no usb.ids file is installed.
func New() *Database {
	db := &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
	}
	db.vendors[0x2341] = "Arduino SA"
	db.vendors[0x03EB] = "Atmel Corp."
	db.products[key(0x2341, 0x0043)] = "Uno R3 (CDC ACM)"
	db.products[key(0x2341, 0x0001)] = "Uno (CDC ACM)"
	db.products[key(0x2341, 0x0042)] = "Mega 2560 R3 (CDC ACM)"
	db.products[key(0x03EB, 0x2FEF)] = "atmega16u2 DFU bootloader"
	return db
}

func key(vid, pid uint16) uint32 {
	return uint32(vid)<<16 | uint32(pid)
}

// Load merges the first readable file among paths, or DefaultPaths when
// none are given. It returns an error wrapping fs.ErrNotExist if no file
// could be opened.
func (db *Database) Load(paths ...string) error {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		defer f.Close()
		if err := db.Parse(f); err != nil {
			return fmt.Errorf("parse %s: %w", p, err)
		}
		return nil
	}
	return fmt.Errorf("usb.ids: %w", fs.ErrNotExist)
}

// Parse merges vendor and product lines from r. Entries read later replace
// earlier ones.
func (db *Database) Parse(r io.Reader) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	sc := bufio.NewScanner(r)
	var vid uint16
	inVendor := false
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}

		// Vendor:    "xxxx  Name"
		// Product:   "\txxxx  Name"
		// Interface: "\t\txx  Name" (ignored)
		indented := strings.HasPrefix(line, "\t")
		id, name, ok := splitEntry(strings.TrimPrefix(line, "\t"))
		switch {
		case !indented && ok:
			vid, inVendor = id, true
			db.vendors[vid] = name
		case !indented:
			// Class, language and other trailing sections.
			inVendor = false
		case inVendor && ok && !strings.HasPrefix(line, "\t\t"):
			db.products[key(vid, id)] = name
		}
	}
	return sc.Err()
}

// splitEntry parses "xxxx  Name" into a 16-bit ID and a name.
func splitEntry(s string) (uint16, string, bool) {
	if len(s) < 6 || s[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	return uint16(id), strings.TrimLeft(s[5:], " "), true
}

// Vendor returns the vendor name, or "" if unknown.
func (db *Database) Vendor(vid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// Product returns the product name, or "" if unknown.
func (db *Database) Product(vid, pid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[key(vid, pid)]
}

// Describe formats a VID:PID pair with whatever names are known.
func (db *Database) Describe(vid, pid uint16) string {
	s := fmt.Sprintf("%04x:%04x", vid, pid)
	if v := db.Vendor(vid); v != "" {
		s += " " + v
	}
	if p := db.Product(vid, pid); p != "" {
		s += " " + p
	}
	return s
}
