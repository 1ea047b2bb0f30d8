package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/dogukan1212/moiport-sub000/domain"
)

// DefaultChannel is the redis channel carrying board events between
// instances.
const DefaultChannel = "board:updates"

// message is the wire form of an envelope on the backplane, extended
// with the room it targets.
type message struct {
	Room   string          `json:"room"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	Origin string          `json:"origin,omitempty"`
	TS     int64           `json:"ts"`
}

// Backplane routes board events through redis pub/sub so that every
// service instance delivers them to its own hub, regardless of which
// instance handled the mutation.
type Backplane struct {
	rc      *redis.Client
	channel string
	hub     *Hub
	log     *log.Logger
}

func NewBackplane(rc *redis.Client, channel string, hub *Hub, logger *log.Logger) *Backplane {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Backplane{rc: rc, channel: channel, hub: hub, log: logger}
}

// Broadcast publishes the envelope for the given room, stamping the
// server timestamp. Publish failures are logged; the caller's mutation
// has already committed and must not fail on fan-out.
func (b *Backplane) Broadcast(ctx context.Context, room string, ev domain.Envelope) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		b.log.WithError(err).WithField("event", ev.Event).Error("marshal broadcast payload")
		return
	}
	ts := ev.TS
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	payload, err := json.Marshal(message{Room: room, Event: ev.Event, Data: data, Origin: ev.Origin, TS: ts})
	if err != nil {
		b.log.WithError(err).Error("marshal backplane message")
		return
	}
	if err := b.rc.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.log.WithError(err).WithField("room", room).Error("backplane publish failed")
	}
}

// Run consumes the backplane channel and feeds this instance's hub until
// the context is canceled. The subscription is re-established if redis
// drops it.
func (b *Backplane) Run(ctx context.Context) {
	for {
		sub := b.rc.Subscribe(ctx, b.channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				b.deliver(msg.Payload)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		b.log.Error("backplane channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}

func (b *Backplane) deliver(payload string) {
	var msg message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		b.log.WithError(err).Error("unable to parse backplane message")
		return
	}
	frame, err := json.Marshal(domain.Envelope{
		Event:  msg.Event,
		Data:   msg.Data,
		Origin: msg.Origin,
		TS:     msg.TS,
	})
	if err != nil {
		b.log.WithError(err).Error("marshal client frame")
		return
	}
	b.hub.Publish(msg.Room, frame)
}
