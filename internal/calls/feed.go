package calls

import (
	"context"
	"log/slog"

	"crm-calls/internal/signaling"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Feed broadcasts every written session row on its own topic, separate from
// the signaling topic. Engines learn about remote declines and hangups from it.
type Feed struct {
	bus   signaling.Bus
	topic string
	log   *slog.Logger
}

func NewFeed(bus signaling.Bus, topic string, log *slog.Logger) *Feed {
	if log == nil {
		log = slog.Default()
	}
	return &Feed{bus: bus, topic: topic, log: log.With("topic", topic)}
}

// SessionChanged implements Notifier. Publish failures are logged only.
func (f *Feed) SessionChanged(ctx context.Context, s Session) {
	payload, err := json.Marshal(s)
	if err != nil {
		f.log.Error("encode session change", "session_id", s.ID, "err", err)
		return
	}
	if err := f.bus.Publish(context.WithoutCancel(ctx), f.topic, payload); err != nil {
		f.log.Warn("publish session change", "session_id", s.ID, "status", s.Status, "err", err)
	}
}

// Subscribe calls fn for each change until the returned cancel func runs.
// fn runs on a single goroutine in publish order.
func (f *Feed) Subscribe(ctx context.Context, fn func(Session)) (func(), error) {
	ch, cancel, err := f.bus.Subscribe(ctx, f.topic)
	if err != nil {
		return nil, err
	}
	go func() {
		for payload := range ch {
			var s Session
			if err := json.Unmarshal(payload, &s); err != nil {
				f.log.Warn("dropping malformed session change", "err", err)
				continue
			}
			fn(s)
		}
	}()
	return cancel, nil
}
