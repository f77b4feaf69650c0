package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"globalreach/internal/events"
	"globalreach/internal/lead/models"
	"globalreach/internal/lead/store"
	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/requestcontext"
)

// recordingPublisher captures emitted events for assertions.
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

type LeadServiceSuite struct {
	suite.Suite
	store     *store.InMemory
	publisher *recordingPublisher
	service   *Service
	ctx       context.Context
}

func TestLeadServiceSuite(t *testing.T) {
	suite.Run(t, new(LeadServiceSuite))
}

func (s *LeadServiceSuite) SetupTest() {
	s.store = store.NewInMemory()
	s.publisher = &recordingPublisher{}

	var err error
	s.service, err = New(s.store, s.publisher)
	s.Require().NoError(err)

	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
}

func (s *LeadServiceSuite) TestNewRequiresStore() {
	_, err := New(nil, nil)
	s.Error(err)
}

func (s *LeadServiceSuite) TestCreateEmitsEvent() {
	lead, err := s.service.Create(s.ctx, CreateRequest{
		Name:    "Ada Lovelace",
		Phone:   "+49 170 1234567",
		Channel: id.ChannelWhatsApp,
		Source:  "fair",
	})
	s.Require().NoError(err)
	s.Equal(models.LeadStatusNew, lead.Status)
	s.Equal("+491701234567", lead.Phone)
	s.Equal([]string{"lead.created"}, s.publisher.types())
}

func (s *LeadServiceSuite) TestCreateDuplicateConflicts() {
	_, err := s.service.Create(s.ctx, CreateRequest{Name: "A", Phone: "+1", Channel: id.ChannelWhatsApp})
	s.Require().NoError(err)

	_, err = s.service.Create(s.ctx, CreateRequest{Name: "B", Phone: "+1", Channel: id.ChannelWhatsApp})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *LeadServiceSuite) TestFindOrCreateByHandle() {
	lead, err := s.service.FindOrCreateByHandle(s.ctx, id.ChannelWhatsApp, "+491701234567", "Ada")
	s.Require().NoError(err)
	s.Equal("inbound", lead.Source)
	s.Equal("Ada", lead.Name)

	again, err := s.service.FindOrCreateByHandle(s.ctx, id.ChannelWhatsApp, "+49 170 123 4567", "ignored")
	s.Require().NoError(err)
	s.Equal(lead.ID, again.ID, "second resolution must reuse the lead")
	s.Equal([]string{"lead.created"}, s.publisher.types(), "only the first resolution emits")
}

func (s *LeadServiceSuite) TestAdvanceEnforcesLifecycle() {
	lead, err := s.service.Create(s.ctx, CreateRequest{Name: "A", Phone: "+1", Channel: id.ChannelWhatsApp})
	s.Require().NoError(err)

	_, err = s.service.Advance(s.ctx, lead.ID, models.LeadStatusQualified)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	advanced, err := s.service.Advance(s.ctx, lead.ID, models.LeadStatusContacted)
	s.Require().NoError(err)
	s.Equal(models.LeadStatusContacted, advanced.Status)
}

func (s *LeadServiceSuite) TestAdvanceUnknownLead() {
	_, err := s.service.Advance(s.ctx, id.NewLeadID(), models.LeadStatusContacted)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *LeadServiceSuite) TestUpdateKeepsContactInvariant() {
	lead, err := s.service.Create(s.ctx, CreateRequest{Name: "A", Phone: "+1", Channel: id.ChannelWhatsApp})
	s.Require().NoError(err)

	empty := ""
	_, err = s.service.Update(s.ctx, lead.ID, UpdateRequest{Phone: &empty})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	company := "Acme GmbH"
	updated, err := s.service.Update(s.ctx, lead.ID, UpdateRequest{Company: &company})
	s.Require().NoError(err)
	s.Equal("Acme GmbH", updated.Company)
}

func (s *LeadServiceSuite) TestMarkContactedOnlyFromNew() {
	lead, err := s.service.Create(s.ctx, CreateRequest{Name: "A", Phone: "+1", Channel: id.ChannelWhatsApp})
	s.Require().NoError(err)

	s.Require().NoError(s.service.MarkContacted(s.ctx, lead.ID))
	got, err := s.service.Get(s.ctx, lead.ID)
	s.Require().NoError(err)
	s.Equal(models.LeadStatusContacted, got.Status)

	_, err = s.service.Advance(s.ctx, lead.ID, models.LeadStatusQualified)
	s.Require().NoError(err)
	s.Require().NoError(s.service.MarkContacted(s.ctx, lead.ID))
	got, err = s.service.Get(s.ctx, lead.ID)
	s.Require().NoError(err)
	s.Equal(models.LeadStatusQualified, got.Status, "MarkContacted must not regress status")
}
