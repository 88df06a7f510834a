// Package systemd integrates the daemon with systemd: sd_notify readiness,
// stopping and watchdog messages, and unit status over D-Bus.
package systemd
