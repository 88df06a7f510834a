// Package app builds the daemon from its config file and runs it: the cron
// trigger that drives digest passes, config and site directory hot reload,
// the intake surfaces and systemd integration.
package app
