package registry

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/delmic/odemis-sub003/attribute"
	"github.com/delmic/odemis-sub003/datastream"
	"github.com/delmic/odemis-sub003/errors"
	"github.com/delmic/odemis-sub003/remote"
)

// Decoder deserializes a payload arriving from the transport. When nil is
// passed to the Observe functions, encoding/json is used.
type Decoder[T any] func([]byte) (T, error)

// Observer is one running remote-subscription listening loop. Stop ends the
// loop and waits for it to drain.
type Observer struct {
	sub  remote.Subscription
	done chan struct{}
}

// Stop ends the observation. Payloads already forwarded by the transport
// are still delivered before Stop returns. Idempotent.
func (o *Observer) Stop() error {
	err := o.sub.Unsubscribe()
	<-o.done
	return err
}

// Done returns a channel closed when the listening loop has exited.
func (o *Observer) Done() <-chan struct{} {
	return o.done
}

// Observe forwards raw payloads from an exported channel to fn, one at a
// time, until Stop is called or ctx ends. This is the untyped form; most
// callers want ObserveCell or ObserveStream.
func (r *Registry) Observe(ctx context.Context, channelID remote.ChannelID, fn func([]byte)) (*Observer, error) {
	if fn == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"Registry", "Observe", "callback validation")
	}

	sub, err := r.transport.ForwardToLocal(ctx, channelID)
	if err != nil {
		return nil, errors.Wrap(err, "Registry", "Observe", "forward")
	}

	o := &Observer{sub: sub, done: make(chan struct{})}
	go func() {
		defer close(o.done)
		for payload := range sub.Payloads() {
			r.invoke(fn, payload)
		}
	}()
	return o, nil
}

// invoke shields the listening loop from a panicking callback.
func (r *Registry) invoke(fn func([]byte), payload []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("observer callback panicked", slog.Any("panic", rec))
		}
	}()
	fn(payload)
}

// ObserveCell mirrors an exported cell into a local one: every value
// broadcast on channelID is decoded and stored in cell, so local
// subscribers see remote changes through the ordinary Subscribe API. The
// mirror cell should carry no validator or setter of its own.
func ObserveCell[T comparable](ctx context.Context, r *Registry, channelID remote.ChannelID, cell *attribute.Cell[T], decode Decoder[T]) (*Observer, error) {
	if cell == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"Registry", "ObserveCell", "cell validation")
	}
	if decode == nil {
		decode = jsonDecoder[T]()
	}

	return r.Observe(ctx, channelID, func(payload []byte) {
		v, err := decode(payload)
		if err != nil {
			r.logger.Warn("cell mirror payload not decodable",
				slog.String("cell", cell.Name()), slog.Any("error", err))
			return
		}
		if err := cell.Set(v); err != nil {
			r.logger.Warn("cell mirror rejected remote value",
				slog.String("cell", cell.Name()), slog.Any("error", err))
		}
	})
}

// ObserveStream mirrors an exported stream into a local channel: every
// payload broadcast on channelID is decoded and republished on ch.
func ObserveStream[T any](ctx context.Context, r *Registry, channelID remote.ChannelID, ch *datastream.Channel[T], decode Decoder[T]) (*Observer, error) {
	if ch == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig,
			"Registry", "ObserveStream", "channel validation")
	}
	if decode == nil {
		decode = jsonDecoder[T]()
	}

	return r.Observe(ctx, channelID, func(payload []byte) {
		v, err := decode(payload)
		if err != nil {
			r.logger.Warn("stream mirror payload not decodable",
				slog.String("stream", ch.Name()), slog.Any("error", err))
			return
		}
		ch.Publish(v)
	})
}

func jsonDecoder[T any]() Decoder[T] {
	return func(payload []byte) (T, error) {
		var v T
		err := json.Unmarshal(payload, &v)
		return v, err
	}
}
