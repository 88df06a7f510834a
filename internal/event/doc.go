// Package event defines the digest's event types, the sections they are
// grouped under and the registry that binds each type to its renderer.
package event
