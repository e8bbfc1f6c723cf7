// Package listener provides the subscription primitives shared by attribute
// cells and data streams: a listener capability interface with strong and
// weak implementations, and a thread-safe registry that dispatches values to
// a snapshot of the current subscriber set.
//
// # Weak listeners
//
// Go has no transparent weak references, so "does not keep the owner alive"
// is modeled as an explicit contract: a Weak listener hands out a callback
// but the owner must call Release on teardown. After Release the handle
// reports Alive() == false, Invoke returns errors.ErrListenerDead, and the
// wrapped callback (and anything it captured) is dropped. Registries remove
// dead listeners automatically on the next dispatch, so a forgotten
// unsubscribe degrades to one wasted dispatch instead of a leak.
//
// # Dispatch isolation
//
// Registry.Dispatch invokes every listener from a snapshot taken under the
// registry lock, so a listener may subscribe or unsubscribe (itself or
// others) during its own invocation. A panic or error in one listener is
// logged and never reaches the publisher or the remaining listeners.
package listener
