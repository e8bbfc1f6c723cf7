// Package attribute provides validated, observable value holders ("VAs")
// used by drivers to expose settings and state.
//
// # Overview
//
// A Cell holds one typed value. Writers go through Set, which runs the
// cell's validator, lets an optional setter clamp or transform the requested
// value, and notifies subscribers. Readers call Get or subscribe to be
// called on every change. Remote observers subscribe through channel
// identifiers and receive serialized copies over the remote transport.
//
// Three validation variants exist, selected at construction by their
// configuration struct:
//
//   - NewCell with no config: any value of the type is accepted.
//   - NewContinuous with RangeConfig: values must lie in [Min, Max].
//   - NewEnumerated with ChoiceConfig: values must be one of a fixed set.
//
// Re-configuring a validator (SetRange, SetChoices) is rejected when it
// would make the currently stored value invalid.
//
// # Notification rule
//
// Set notifies subscribers whenever the previous value differs from the
// stored value, or the requested value differs from the stored value. The
// second clause means a clamped write that lands on the already-stored value
// still notifies: the subscriber learns that its request was adjusted. Do
// not "simplify" this into a plain equality check.
package attribute
