package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/domain"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/core/port"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/config"
	"github.com/Leonidas-maker/TheStudentMaster-sub000/internal/infra/logger"
)

// Producer publishes notification events through a Sarama async producer.
// Delivery is fire-and-forget: errors surface on the error loop and are
// logged, never returned to the security flow.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
	done     chan struct{}
}

// NewProducer initializes the Kafka async producer.
func NewProducer(cfg config.KafkaSettings, log *zap.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 100 * time.Millisecond
	saramaConfig.Producer.Flush.Messages = 100
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = false
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := &Producer{
		producer: producer,
		logger:   log,
		cfg:      cfg,
		done:     make(chan struct{}),
	}

	go p.handleErrors()

	log.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)

	return p, nil
}

func (p *Producer) handleErrors() {
	for {
		select {
		case err := <-p.producer.Errors():
			if err != nil {
				p.logger.Error("Kafka producer error",
					zap.Error(err.Err),
					zap.String("topic", err.Msg.Topic),
				)
			}
		case <-p.done:
			return
		}
	}
}

// Close gracefully closes the producer and waits for pending messages.
func (p *Producer) Close() error {
	close(p.done)
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

func (p *Producer) topicName(eventType string) string {
	if p.cfg.TopicPrefix == "" {
		return eventType
	}
	return p.cfg.TopicPrefix + "." + eventType
}

func (p *Producer) publish(eventType, key string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	p.producer.Input() <- &sarama.ProducerMessage{
		Topic: p.topicName(eventType),
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(encoded),
	}

	return nil
}

// PublishVerificationCodeIssued emits auth.verification.code_issued events.
func (p *Producer) PublishVerificationCodeIssued(_ context.Context, event domain.VerificationCodeIssuedEvent) error {
	return p.publish("auth.verification.code_issued", event.UserID, map[string]any{
		"user_id":    event.UserID,
		"email":      event.Email,
		"code":       event.Code,
		"expires_at": event.ExpiresAt,
		"issued_at":  event.IssuedAt,
	})
}

// PublishPasswordResetRequested emits auth.password.reset_requested events.
func (p *Producer) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	return p.publish("auth.password.reset_requested", event.UserID, map[string]any{
		"user_id":    event.UserID,
		"email":      event.Email,
		"code":       event.Code,
		"expires_at": event.ExpiresAt,
		"issued_at":  event.IssuedAt,
	})
}

// PublishPasswordChanged emits auth.password.changed events.
func (p *Producer) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	return p.publish("auth.password.changed", event.UserID, map[string]any{
		"user_id":    event.UserID,
		"email":      logger.MaskEmail(event.Email),
		"changed_at": event.ChangedAt,
	})
}

// PublishTwoFactorEnabled emits auth.twofactor.enabled events.
func (p *Producer) PublishTwoFactorEnabled(_ context.Context, event domain.TwoFactorEnabledEvent) error {
	return p.publish("auth.twofactor.enabled", event.UserID, map[string]any{
		"user_id":    event.UserID,
		"email":      event.Email,
		"enabled_at": event.EnabledAt,
	})
}

// PublishTwoFactorDisabled emits auth.twofactor.disabled events.
func (p *Producer) PublishTwoFactorDisabled(_ context.Context, event domain.TwoFactorDisabledEvent) error {
	return p.publish("auth.twofactor.disabled", event.UserID, map[string]any{
		"user_id":     event.UserID,
		"email":       event.Email,
		"disabled_at": event.DisabledAt,
		"via_backup":  event.ViaBackup,
	})
}

// PublishAccountLocked emits auth.account.locked events.
func (p *Producer) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	return p.publish("auth.account.locked", event.UserID, map[string]any{
		"user_id":   event.UserID,
		"email":     event.Email,
		"permanent": event.Permanent,
		"until":     event.Until,
		"locked_at": event.LockedAt,
	})
}

var _ port.EventPublisher = (*Producer)(nil)
