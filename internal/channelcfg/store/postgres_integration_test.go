//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"globalreach/internal/channelcfg/models"
	"globalreach/internal/channelcfg/store"
	id "globalreach/pkg/domain"
	"globalreach/pkg/platform/sentinel"
	"globalreach/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.Truncate(context.Background()))
}

func newWhatsAppConfig() *models.ChannelConfig {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.ChannelConfig{
		ID:            id.NewChannelConfigID(),
		Channel:       id.ChannelWhatsApp,
		Enabled:       true,
		VerifyToken:   "verify-me",
		AppSecret:     "shh",
		PhoneNumberID: "15550001111",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *PostgresStoreSuite) TestCreateAndFindByChannel() {
	ctx := context.Background()
	cfg := newWhatsAppConfig()
	s.Require().NoError(s.store.Create(ctx, cfg))

	found, err := s.store.FindByChannel(ctx, id.ChannelWhatsApp)
	s.Require().NoError(err)
	s.Equal(cfg.ID, found.ID)
	s.Equal("15550001111", found.PhoneNumberID)
	s.True(found.Enabled)

	_, err = s.store.FindByChannel(ctx, id.ChannelEmail)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDuplicateChannelRejected() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newWhatsAppConfig()))
	s.Require().ErrorIs(s.store.Create(ctx, newWhatsAppConfig()), sentinel.ErrAlreadyUsed)
}

func (s *PostgresStoreSuite) TestUpdateDisablesChannel() {
	ctx := context.Background()
	cfg := newWhatsAppConfig()
	s.Require().NoError(s.store.Create(ctx, cfg))

	cfg.Enabled = false
	cfg.UpdatedAt = time.Now().UTC()
	s.Require().NoError(s.store.Update(ctx, cfg))

	found, err := s.store.FindByID(ctx, cfg.ID)
	s.Require().NoError(err)
	s.False(found.Enabled)
}

func (s *PostgresStoreSuite) TestListOrdersByChannel() {
	ctx := context.Background()
	now := time.Now().UTC()
	s.Require().NoError(s.store.Create(ctx, newWhatsAppConfig()))
	s.Require().NoError(s.store.Create(ctx, &models.ChannelConfig{
		ID: id.NewChannelConfigID(), Channel: id.ChannelEmail,
		SMTPHost: "smtp.example.com", FromAddress: "sales@globalreach.example",
		CreatedAt: now, UpdatedAt: now,
	}))

	configs, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(configs, 2)
	s.Equal(id.ChannelEmail, configs[0].Channel)
	s.Equal(id.ChannelWhatsApp, configs[1].Channel)
}

func (s *PostgresStoreSuite) TestDeleteMissing() {
	s.Require().ErrorIs(s.store.Delete(context.Background(), id.NewChannelConfigID()), sentinel.ErrNotFound)
}
