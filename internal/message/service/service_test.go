package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	cfgmodels "globalreach/internal/channelcfg/models"
	cfgservice "globalreach/internal/channelcfg/service"
	cfgstore "globalreach/internal/channelcfg/store"
	"globalreach/internal/events"
	leadmodels "globalreach/internal/lead/models"
	leadservice "globalreach/internal/lead/service"
	leadstore "globalreach/internal/lead/store"
	"globalreach/internal/message/channels"
	"globalreach/internal/message/models"
	"globalreach/internal/message/store"
	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/requestcontext"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingPublisher) Close() {}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type fakeSender struct {
	channel    id.Channel
	providerID string
	err        error
	lastReq    channels.SendRequest
	calls      int
}

func (f *fakeSender) Channel() id.Channel { return f.channel }

func (f *fakeSender) Send(_ context.Context, req channels.SendRequest) (string, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return "", f.err
	}
	return f.providerID, nil
}

type MessageServiceSuite struct {
	suite.Suite
	messages  *store.InMemory
	leads     *leadservice.Service
	configs   *cfgservice.Service
	sender    *fakeSender
	publisher *recordingPublisher
	service   *Service
	ctx       context.Context
	lead      *leadmodels.Lead
}

func TestMessageServiceSuite(t *testing.T) {
	suite.Run(t, new(MessageServiceSuite))
}

func (s *MessageServiceSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC))

	s.messages = store.NewInMemory()
	s.publisher = &recordingPublisher{}
	s.sender = &fakeSender{channel: id.ChannelWhatsApp, providerID: "wamid.OUT1"}

	var err error
	s.leads, err = leadservice.New(leadstore.NewInMemory(), events.NopPublisher{})
	s.Require().NoError(err)

	s.configs, err = cfgservice.New(cfgstore.NewInMemory())
	s.Require().NoError(err)
	_, err = s.configs.Create(s.ctx, &cfgmodels.ChannelConfig{
		Channel:       id.ChannelWhatsApp,
		Enabled:       true,
		VerifyToken:   "vt",
		AppSecret:     "secret",
		PhoneNumberID: "15550001111",
	})
	s.Require().NoError(err)

	s.service, err = New(s.messages, s.leads, s.configs, []channels.Sender{s.sender}, s.publisher, nil)
	s.Require().NoError(err)

	s.lead, err = s.leads.Create(s.ctx, leadservice.CreateRequest{
		Name:    "Mei Lin",
		Phone:   "+86 138 0000 0000",
		Channel: id.ChannelWhatsApp,
		Source:  "fair",
	})
	s.Require().NoError(err)
}

func (s *MessageServiceSuite) TestSendDeliversAndMarksContacted() {
	msg, err := s.service.Send(s.ctx, SendRequest{LeadID: s.lead.ID, Body: "hello"})
	s.Require().NoError(err)

	s.Equal(models.StatusSent, msg.Status)
	s.Equal("wamid.OUT1", msg.ProviderMessageID)
	s.Equal(models.DirectionOutbound, msg.Direction)
	s.Equal("+8613800000000", s.sender.lastReq.To)
	s.Equal("15550001111", s.sender.lastReq.Config.PhoneNumberID)

	lead, err := s.leads.Get(s.ctx, s.lead.ID)
	s.Require().NoError(err)
	s.Equal(leadmodels.LeadStatusContacted, lead.Status)

	s.Contains(s.publisher.types(), "message.sent")
}

func (s *MessageServiceSuite) TestSendFailureKeepsFailedRow() {
	s.sender.err = dErrors.New(dErrors.CodeUnavailable, "provider down")

	msg, err := s.service.Send(s.ctx, SendRequest{LeadID: s.lead.ID, Body: "hello"})
	s.Require().Error(err)
	s.Require().NotNil(msg)
	s.Equal(models.StatusFailed, msg.Status)
	s.NotEmpty(msg.ErrorCode)

	stored, err := s.service.Get(s.ctx, msg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, stored.Status)

	lead, err := s.leads.Get(s.ctx, s.lead.ID)
	s.Require().NoError(err)
	s.Equal(leadmodels.LeadStatusNew, lead.Status)

	s.Contains(s.publisher.types(), "message.failed")
}

func (s *MessageServiceSuite) TestSendRejectsDisabledChannel() {
	cfg, err := s.configs.GetByChannel(s.ctx, id.ChannelWhatsApp)
	s.Require().NoError(err)
	cfg.Enabled = false
	_, err = s.configs.Update(s.ctx, cfg)
	s.Require().NoError(err)

	_, err = s.service.Send(s.ctx, SendRequest{LeadID: s.lead.ID, Body: "hello"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Zero(s.sender.calls)
}

func (s *MessageServiceSuite) TestSendUnknownLead() {
	_, err := s.service.Send(s.ctx, SendRequest{LeadID: id.NewLeadID(), Body: "hello"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *MessageServiceSuite) TestRecordInboundCreatesLead() {
	msg, err := s.service.RecordInbound(s.ctx, InboundMessage{
		Channel:           id.ChannelWhatsApp,
		ProviderMessageID: "wamid.IN1",
		From:              "8613900001111",
		DisplayName:       "New Buyer",
		Body:              "do you ship to Hamburg?",
	})
	s.Require().NoError(err)
	s.Equal(models.StatusReceived, msg.Status)
	s.Equal(models.DirectionInbound, msg.Direction)

	lead, err := s.leads.Get(s.ctx, msg.LeadID)
	s.Require().NoError(err)
	s.Equal("New Buyer", lead.Name)
	s.Equal("inbound", lead.Source)

	s.Contains(s.publisher.types(), "message.received")
}

func (s *MessageServiceSuite) TestRecordInboundRedeliveryReturnsExisting() {
	first, err := s.service.RecordInbound(s.ctx, InboundMessage{
		Channel:           id.ChannelWhatsApp,
		ProviderMessageID: "wamid.IN2",
		From:              "8613900001111",
		Body:              "hello",
	})
	s.Require().NoError(err)

	second, err := s.service.RecordInbound(s.ctx, InboundMessage{
		Channel:           id.ChannelWhatsApp,
		ProviderMessageID: "wamid.IN2",
		From:              "8613900001111",
		Body:              "hello",
	})
	s.Require().NoError(err)
	s.Equal(first.ID, second.ID)

	msgs, err := s.service.ListByLead(s.ctx, first.LeadID, 0)
	s.Require().NoError(err)
	s.Len(msgs, 1)
}

func (s *MessageServiceSuite) TestApplyReceiptAdvancesStatus() {
	msg, err := s.service.Send(s.ctx, SendRequest{LeadID: s.lead.ID, Body: "hello"})
	s.Require().NoError(err)

	err = s.service.ApplyReceipt(s.ctx, msg.ProviderMessageID, models.StatusDelivered, "")
	s.Require().NoError(err)

	stored, err := s.service.Get(s.ctx, msg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, stored.Status)
	s.Contains(s.publisher.types(), "message.status")
}

func (s *MessageServiceSuite) TestApplyReceiptIgnoresStaleAndUnknown() {
	msg, err := s.service.Send(s.ctx, SendRequest{LeadID: s.lead.ID, Body: "hello"})
	s.Require().NoError(err)

	s.Require().NoError(s.service.ApplyReceipt(s.ctx, msg.ProviderMessageID, models.StatusRead, ""))
	// delivered arrives after read; must not regress
	s.Require().NoError(s.service.ApplyReceipt(s.ctx, msg.ProviderMessageID, models.StatusDelivered, ""))

	stored, err := s.service.Get(s.ctx, msg.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRead, stored.Status)

	// receipt for a message we never sent is dropped quietly
	s.Require().NoError(s.service.ApplyReceipt(s.ctx, "wamid.UNKNOWN", models.StatusDelivered, ""))
}

func (s *MessageServiceSuite) TestListByLeadOrdersOldestFirst() {
	base := time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC)
	for i, body := range []string{"first", "second", "third"} {
		ctx := requestcontext.WithTime(context.Background(), base.Add(time.Duration(i)*time.Minute))
		s.sender.providerID = "wamid.OUT" + body
		_, err := s.service.Send(ctx, SendRequest{LeadID: s.lead.ID, Body: body})
		s.Require().NoError(err)
	}

	msgs, err := s.service.ListByLead(s.ctx, s.lead.ID, 2)
	s.Require().NoError(err)
	s.Require().Len(msgs, 2)
	s.Equal("second", msgs[0].Body)
	s.Equal("third", msgs[1].Body)
}
