//go:build !linux

package proctitle

import "os"

// Only argv[0] changes here; ps keeps the executable name.
func set(title string) error {
	if len(os.Args) > 0 {
		os.Args[0] = title
	}
	return nil
}
