// Package scheduler decides when a digest is due and drives the periodic
// check. IsDue is a pure function over a Frequency; Trigger is a cron
// runner (robfig/cron) that calls back on every tick, hourly by default.
package scheduler
