// Package registry publishes cells and streams over a transport and mirrors
// remote ones into the local process.
//
// # Serving side
//
// A Registry maps names to exports. Exporting a cell or stream allocates a
// transport channel and subscribes the export to it, so every notification
// is broadcast:
//
//	reg, _ := registry.New(transport)
//	export, _ := reg.ExportCell("stage.position", posCell)
//
// Remote peers learn the channel identifier through Resolve (or any side
// channel) and subscribe on it.
//
// # Observing side
//
// ObserveCell and ObserveStream run the listening loop that bridges a
// transport forward onto the local subscription API. A mirrored cell or
// stream behaves like a local one; its subscribers cannot tell the value
// crossed a process boundary:
//
//	mirror := attribute.NewCell("stage.position", 0.0)
//	obs, _ := registry.ObserveCell(ctx, reg, export.ChannelID, mirror, nil)
//	defer obs.Stop()
//
// Registries are always constructed explicitly. Nothing in this package
// holds global state, so independent component sets can be served over
// independent transports within one process.
package registry
