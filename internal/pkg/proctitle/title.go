// Package proctitle names the running process after the service it hosts.
package proctitle

import "strings"

const prefix = "svh-"

// For returns the process title of service, cut to the kernel's comm limit.
func For(service string) string {
	service = strings.TrimSpace(service)
	if service == "" {
		return ""
	}
	title := prefix + service
	if len(title) > commMax {
		title = title[:commMax]
	}
	return title
}

// Apply sets the title of service on the current process.
func Apply(service string) error {
	title := For(service)
	if title == "" {
		return ErrEmptyTitle
	}
	return set(title)
}
