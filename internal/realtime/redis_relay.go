package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brainskev/houseListing2-sub000/internal/models"
	"github.com/brainskev/houseListing2-sub000/internal/services"
	"github.com/brainskev/houseListing2-sub000/internal/utils"
)

// relayFrame is what travels over the Redis channel: a room and the envelope for it.
type relayFrame struct {
	Room     utils.SixID `json:"room"`
	Envelope Envelope    `json:"envelope"`
}

// RedisRelay publishes room events to a Redis channel that every API instance subscribes
// to, so a client connected to any instance receives events written through any other.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     *zap.Logger
}

var _ services.IEventPublisher = (*RedisRelay)(nil)

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, log *zap.Logger) *RedisRelay {
	return &RedisRelay{client: client, channel: channel, hub: hub, log: log}
}

func (r *RedisRelay) PublishMessageNew(ctx context.Context, conv *models.Conversation, msg *models.Message) error {
	env, err := messageNewEnvelope(conv, msg)
	if err != nil {
		return fmt.Errorf("%w: %v", services.ErrTransport, err)
	}
	return r.publish(ctx, conv.ID, env)
}

func (r *RedisRelay) PublishRead(ctx context.Context, conv *models.Conversation, userID utils.SixID) error {
	env, err := readEnvelope(conv, userID)
	if err != nil {
		return fmt.Errorf("%w: %v", services.ErrTransport, err)
	}
	return r.publish(ctx, conv.ID, env)
}

// publish falls back to local delivery when Redis is unreachable, so at least this
// instance's subscribers see the event.
func (r *RedisRelay) publish(ctx context.Context, room utils.SixID, env Envelope) error {
	data, err := json.Marshal(relayFrame{Room: room, Envelope: env})
	if err != nil {
		return fmt.Errorf("%w: encode relay frame: %v", services.ErrTransport, err)
	}
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		if _, localErr := r.hub.BroadcastEnvelope(room, env); localErr != nil {
			r.log.Warn("local fallback delivery failed", zap.Error(localErr))
		}
		return fmt.Errorf("%w: redis publish to %s: %v", services.ErrTransport, r.channel, err)
	}
	return nil
}

// Run subscribes to the relay channel and feeds frames into the local hub until ctx ends.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}
	r.log.Info("realtime relay subscribed", zap.String("channel", r.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(payload string) {
	var frame relayFrame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		r.log.Warn("discarding malformed relay frame", zap.Error(err))
		return
	}
	if _, err := r.hub.BroadcastEnvelope(frame.Room, frame.Envelope); err != nil {
		r.log.Warn("failed to deliver relayed event",
			zap.String("conversation_id", frame.Room.String()),
			zap.String("type", frame.Envelope.Type),
			zap.Error(err))
	}
}
