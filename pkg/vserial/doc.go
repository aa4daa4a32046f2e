// Package vserial manages kernel pseudo-terminal pairs presented as
// virtual serial devices.
//
// A Device owns a pty master/slave pair. The slave path can be published
// under a stable, caller-chosen path via a symlink that is created with
// a unique temporary name and atomically renamed into place, so an
// observer never sees a missing or dangling link. Close removes the link
// only while it still points at this device's slave, then releases the
// pair.
package vserial
