// Package site describes the host site the digest reports on: users,
// posts, comments and site metadata, exposed through the read-only Directory
// interface. Static is a YAML-backed implementation for the standalone
// daemon and for tests.
package site
