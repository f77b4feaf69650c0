// Package service orchestrates outbound delivery, inbound recording and
// delivery receipts.
package service

import (
	"context"
	"errors"
	"log/slog"

	cfgmodels "globalreach/internal/channelcfg/models"
	"globalreach/internal/events"
	leadmodels "globalreach/internal/lead/models"
	"globalreach/internal/message/channels"
	msgmetrics "globalreach/internal/message/metrics"
	"globalreach/internal/message/models"
	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/platform/sentinel"
	"globalreach/pkg/requestcontext"
)

// Store is the persistence port for messages.
type Store interface {
	Create(ctx context.Context, msg *models.Message) error
	Update(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, messageID id.MessageID) (*models.Message, error)
	FindByProviderMessageID(ctx context.Context, providerMessageID string) (*models.Message, error)
	ListByLead(ctx context.Context, leadID id.LeadID, limit int) ([]*models.Message, error)
}

// LeadDirectory is the slice of the lead service messaging needs.
type LeadDirectory interface {
	Get(ctx context.Context, leadID id.LeadID) (*leadmodels.Lead, error)
	FindOrCreateByHandle(ctx context.Context, channel id.Channel, handle, displayName string) (*leadmodels.Lead, error)
	MarkContacted(ctx context.Context, leadID id.LeadID) error
}

// ConfigSource resolves the operational settings for a channel.
type ConfigSource interface {
	GetByChannel(ctx context.Context, channel id.Channel) (*cfgmodels.ChannelConfig, error)
}

// SendRequest carries an operator's outbound message.
type SendRequest struct {
	LeadID id.LeadID
	// Channel overrides the lead's default channel when set.
	Channel id.Channel
	Subject string
	Body    string
}

// InboundMessage is a normalized message a webhook receiver parsed.
type InboundMessage struct {
	Channel           id.Channel
	ProviderMessageID string
	// From is the sender handle on the channel (phone number, email
	// address, WeChat OpenID).
	From        string
	DisplayName string
	Body        string
	MediaType   string
	MediaURL    string
}

// Service coordinates message persistence, channel delivery and events.
type Service struct {
	messages  Store
	leads     LeadDirectory
	configs   ConfigSource
	senders   map[id.Channel]channels.Sender
	publisher events.Publisher
	metrics   *msgmetrics.Metrics
	logger    *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithMetrics sets the metrics collector.
func WithMetrics(m *msgmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a message Service. senders may omit channels the deployment
// has no credentials for; sends on them fail with an unavailable error.
func New(messages Store, leads LeadDirectory, configs ConfigSource, senders []channels.Sender, publisher events.Publisher, logger *slog.Logger, opts ...Option) (*Service, error) {
	if messages == nil {
		return nil, errors.New("message store is required")
	}
	if leads == nil {
		return nil, errors.New("lead directory is required")
	}
	if configs == nil {
		return nil, errors.New("config source is required")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	byChannel := make(map[id.Channel]channels.Sender, len(senders))
	for _, sender := range senders {
		byChannel[sender.Channel()] = sender
	}

	s := &Service{
		messages:  messages,
		leads:     leads,
		configs:   configs,
		senders:   byChannel,
		publisher: publisher,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send validates, persists and delivers an outbound message. The message
// row survives delivery failure in failed state so the operator sees what
// happened.
func (s *Service) Send(ctx context.Context, req SendRequest) (*models.Message, error) {
	lead, err := s.leads.Get(ctx, req.LeadID)
	if err != nil {
		return nil, err
	}

	channel := req.Channel
	if channel == "" {
		channel = lead.Channel
	}
	if !channel.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown channel %q", channel)
	}

	to := recipientHandle(lead, channel)
	if to == "" {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation,
			"lead has no contact handle for channel %q", channel)
	}

	cfg, err := s.channelConfig(ctx, channel)
	if err != nil {
		return nil, err
	}
	sender, ok := s.senders[channel]
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "no sender configured for channel %q", channel)
	}

	now := requestcontext.Now(ctx)
	msg, err := models.NewOutbound(id.NewMessageID(), lead.ID, channel, req.Body, now)
	if err != nil {
		return nil, err
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist message")
	}

	providerID, sendErr := sender.Send(ctx, channels.SendRequest{
		To:      to,
		Subject: req.Subject,
		Body:    msg.Body,
		Config:  cfg,
	})
	if sendErr != nil {
		_, _ = msg.ApplyStatus(models.StatusFailed, string(dErrors.CodeOf(sendErr)), now)
		if err := s.messages.Update(ctx, msg); err != nil {
			s.logger.ErrorContext(ctx, "failed to record send failure",
				"message_id", msg.ID, "error", err)
		}
		s.metrics.IncFailed(channel.String())
		s.emit(ctx, events.TopicMessagingOutbound, "message.failed", msg)
		return msg, sendErr
	}

	msg.ProviderMessageID = providerID
	_, _ = msg.ApplyStatus(models.StatusSent, "", now)
	if err := s.messages.Update(ctx, msg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update message")
	}

	if err := s.leads.MarkContacted(ctx, lead.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to mark lead contacted",
			"lead_id", lead.ID, "error", err)
	}

	s.metrics.IncSent(channel.String())
	s.emit(ctx, events.TopicMessagingOutbound, "message.sent", msg)
	return msg, nil
}

// RecordInbound persists a message a webhook receiver verified, resolving
// or creating the lead it belongs to. Re-deliveries of an already recorded
// provider message id return the existing row.
func (s *Service) RecordInbound(ctx context.Context, in InboundMessage) (*models.Message, error) {
	if in.ProviderMessageID != "" {
		existing, err := s.messages.FindByProviderMessageID(ctx, in.ProviderMessageID)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "message lookup failed")
		}
	}

	lead, err := s.leads.FindOrCreateByHandle(ctx, in.Channel, in.From, in.DisplayName)
	if err != nil {
		return nil, err
	}

	msg, err := models.NewInbound(id.NewMessageID(), lead.ID, in.Channel, in.ProviderMessageID, in.Body, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	msg.MediaType = in.MediaType
	msg.MediaURL = in.MediaURL
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist inbound message")
	}

	s.metrics.IncReceived(in.Channel.String())
	s.emit(ctx, events.TopicMessagingInbound, "message.received", msg)
	return msg, nil
}

// ApplyReceipt advances the delivery state of the message a provider
// receipt references. Receipts for unknown or stale messages are dropped
// without error so providers never see retriable failures for them.
func (s *Service) ApplyReceipt(ctx context.Context, providerMessageID string, status models.Status, errorCode string) error {
	msg, err := s.messages.FindByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.logger.DebugContext(ctx, "receipt for unknown message",
				"provider_message_id", providerMessageID, "status", status)
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "message lookup failed")
	}

	applied, err := msg.ApplyStatus(status, errorCode, requestcontext.Now(ctx))
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}
	if err := s.messages.Update(ctx, msg); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update message")
	}

	s.metrics.IncReceipt(string(status))
	s.emit(ctx, events.TopicMessagingStatus, "message.status", msg)
	return nil
}

// Get returns one message.
func (s *Service) Get(ctx context.Context, messageID id.MessageID) (*models.Message, error) {
	msg, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "message not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "message lookup failed")
	}
	return msg, nil
}

// ListByLead returns a lead's conversation, oldest first.
func (s *Service) ListByLead(ctx context.Context, leadID id.LeadID, limit int) ([]*models.Message, error) {
	if _, err := s.leads.Get(ctx, leadID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	msgs, err := s.messages.ListByLead(ctx, leadID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list messages")
	}
	return msgs, nil
}

func (s *Service) channelConfig(ctx context.Context, channel id.Channel) (*cfgmodels.ChannelConfig, error) {
	cfg, err := s.configs.GetByChannel(ctx, channel)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "channel %q is not configured", channel)
		}
		return nil, err
	}
	if !cfg.Enabled {
		return nil, dErrors.Newf(dErrors.CodeInvariantViolation, "channel %q is disabled", channel)
	}
	return cfg, nil
}

func (s *Service) emit(ctx context.Context, topic, eventType string, msg *models.Message) {
	key := msg.ProviderMessageID
	if key == "" {
		key = msg.ID.String()
	}
	event, err := events.NewEvent(topic, key, eventType, requestcontext.Now(ctx), msg)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to build message event", "error", err)
		return
	}
	s.publisher.Publish(ctx, event)
}

func recipientHandle(lead *leadmodels.Lead, channel id.Channel) string {
	if channel == id.ChannelEmail {
		return lead.Email
	}
	return lead.Phone
}
