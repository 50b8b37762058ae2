package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/brainskev/houseListing2-sub000/internal/config"
)

const mockEmailTTL = 5 * time.Minute

// MockEmailKey is where RedisSender stores the latest email of a kind for an address.
func MockEmailKey(address string, kind Kind) string {
	return fmt.Sprintf("mockemail:%s:%s", address, kind)
}

// RedisSender stores emails in Redis instead of sending them, so integration tests can
// read them back through the service API. Enabled with MOCK_SERVICES=true.
type RedisSender struct {
	client *redis.Client
	cfg    *config.Config
	log    *zap.Logger
}

func NewRedisSender(client *redis.Client, cfg *config.Config, log *zap.Logger) *RedisSender {
	return &RedisSender{client: client, cfg: cfg, log: log}
}

// Send stores one copy per recipient, keyed by address and the kind derived from subject.
func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	kind := KindFromSubject(subject)
	data, err := json.Marshal(map[string]any{
		"to":      strings.Join(to, ", "),
		"from":    s.cfg.SmtpFromAddress,
		"subject": subject,
		"body":    string(rawMessage),
		"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
		"kind":    kind,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	for _, address := range to {
		key := MockEmailKey(address, kind)
		if err := s.client.Set(ctx, key, data, mockEmailTTL).Err(); err != nil {
			return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
		}
	}
	s.log.Debug("mock email stored in Redis", zap.Strings("to", to), zap.String("kind", string(kind)))
	return nil
}
