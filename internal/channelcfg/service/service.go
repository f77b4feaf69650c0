// Package service orchestrates channel configuration management.
package service

import (
	"context"
	"errors"

	"globalreach/internal/channelcfg/models"
	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/platform/sentinel"
	"globalreach/pkg/requestcontext"
)

// Store is the persistence port for channel configs.
type Store interface {
	Create(ctx context.Context, cfg *models.ChannelConfig) error
	Update(ctx context.Context, cfg *models.ChannelConfig) error
	FindByID(ctx context.Context, configID id.ChannelConfigID) (*models.ChannelConfig, error)
	FindByChannel(ctx context.Context, channel id.Channel) (*models.ChannelConfig, error)
	List(ctx context.Context) ([]*models.ChannelConfig, error)
	Delete(ctx context.Context, configID id.ChannelConfigID) error
}

// Service manages channel configurations.
type Service struct {
	store Store
}

func New(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("channel config store is required")
	}
	return &Service{store: store}, nil
}

// Create validates and persists a new channel config.
func (s *Service) Create(ctx context.Context, cfg *models.ChannelConfig) (*models.ChannelConfig, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	cfg.ID = id.NewChannelConfigID()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	if err := s.store.Create(ctx, cfg); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "channel %s is already configured", cfg.Channel)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create channel config")
	}
	return cfg, nil
}

// Update replaces the mutable fields of an existing config.
func (s *Service) Update(ctx context.Context, cfg *models.ChannelConfig) (*models.ChannelConfig, error) {
	if cfg.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "config id is required")
	}
	existing, err := s.store.FindByID(ctx, cfg.ID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	cfg.Channel = existing.Channel
	cfg.CreatedAt = existing.CreatedAt
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.UpdatedAt = requestcontext.Now(ctx)

	if err := s.store.Update(ctx, cfg); err != nil {
		return nil, wrapNotFound(err)
	}
	return cfg, nil
}

// Get returns one config by id.
func (s *Service) Get(ctx context.Context, configID id.ChannelConfigID) (*models.ChannelConfig, error) {
	cfg, err := s.store.FindByID(ctx, configID)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return cfg, nil
}

// GetByChannel returns the config for a channel. Used by the webhook
// receivers and the message senders.
func (s *Service) GetByChannel(ctx context.Context, channel id.Channel) (*models.ChannelConfig, error) {
	if !channel.Valid() {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "unknown channel %q", channel)
	}
	cfg, err := s.store.FindByChannel(ctx, channel)
	if err != nil {
		return nil, wrapNotFound(err)
	}
	return cfg, nil
}

// List returns every config.
func (s *Service) List(ctx context.Context) ([]*models.ChannelConfig, error) {
	cfgs, err := s.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list channel configs")
	}
	return cfgs, nil
}

// Delete removes a config.
func (s *Service) Delete(ctx context.Context, configID id.ChannelConfigID) error {
	if err := s.store.Delete(ctx, configID); err != nil {
		return wrapNotFound(err)
	}
	return nil
}

func wrapNotFound(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "channel config not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "channel config store failure")
}
