// Package service orchestrates the lead lifecycle.
package service

import (
	"context"
	"errors"
	"strings"

	"globalreach/internal/events"
	leadmetrics "globalreach/internal/lead/metrics"
	"globalreach/internal/lead/models"
	"globalreach/internal/lead/store"
	id "globalreach/pkg/domain"
	dErrors "globalreach/pkg/domain-errors"
	"globalreach/pkg/platform/sentinel"
	"globalreach/pkg/requestcontext"
)

// Store is the persistence port for leads.
type Store interface {
	Create(ctx context.Context, lead *models.Lead) error
	Update(ctx context.Context, lead *models.Lead) error
	FindByID(ctx context.Context, leadID id.LeadID) (*models.Lead, error)
	FindByHandle(ctx context.Context, channel id.Channel, handle string) (*models.Lead, error)
	List(ctx context.Context, filter store.Filter) ([]*models.Lead, error)
	Delete(ctx context.Context, leadID id.LeadID) error
}

// CreateRequest carries operator-supplied lead fields.
type CreateRequest struct {
	Name    string
	Company string
	Country string
	Phone   string
	Email   string
	Channel id.Channel
	Source  string
}

// UpdateRequest carries the mutable contact fields. Nil pointers leave the
// field untouched.
type UpdateRequest struct {
	Name    *string
	Company *string
	Country *string
	Phone   *string
	Email   *string
}

// Service orchestrates lead CRUD and lifecycle transitions.
type Service struct {
	leads     Store
	publisher events.Publisher
	metrics   *leadmetrics.Metrics
}

// Option configures the Service.
type Option func(*Service)

// WithMetrics sets the metrics collector.
func WithMetrics(m *leadmetrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a lead Service. The publisher may be a NopPublisher.
func New(leads Store, publisher events.Publisher, opts ...Option) (*Service, error) {
	if leads == nil {
		return nil, errors.New("lead store is required")
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &Service{leads: leads, publisher: publisher}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Create validates and persists a new lead.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Lead, error) {
	lead, err := models.NewLead(id.NewLeadID(), req.Name, req.Channel, req.Phone, req.Email, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	lead.Company = strings.TrimSpace(req.Company)
	lead.Country = strings.TrimSpace(req.Country)
	lead.Source = strings.TrimSpace(req.Source)

	if err := s.leads.Create(ctx, lead); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "a lead with this phone already exists on this channel")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create lead")
	}

	s.emit(ctx, lead, "lead.created")
	s.metrics.IncCreated(lead.Source, lead.Channel.String())
	return lead, nil
}

// FindOrCreateByHandle resolves the lead an inbound message belongs to,
// creating a bare lead when the sender is unknown. Used by webhook
// receivers; a create race with another replica resolves to the winner's
// row.
func (s *Service) FindOrCreateByHandle(ctx context.Context, channel id.Channel, handle, displayName string) (*models.Lead, error) {
	lead, err := s.leads.FindByHandle(ctx, channel, handle)
	if err == nil {
		return lead, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "lead lookup failed")
	}

	name := strings.TrimSpace(displayName)
	if name == "" {
		name = handle
	}
	phone, email := handle, ""
	if channel == id.ChannelEmail {
		phone, email = "", handle
	}

	created, err := models.NewLead(id.NewLeadID(), name, channel, phone, email, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	created.Source = "inbound"

	if err := s.leads.Create(ctx, created); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			// Lost the race; the winner's row is the lead.
			return s.leads.FindByHandle(ctx, channel, handle)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create lead")
	}

	s.emit(ctx, created, "lead.created")
	s.metrics.IncCreated(created.Source, created.Channel.String())
	return created, nil
}

// Get returns one lead.
func (s *Service) Get(ctx context.Context, leadID id.LeadID) (*models.Lead, error) {
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		return nil, wrapLeadErr(err)
	}
	return lead, nil
}

// List returns leads matching the filter.
func (s *Service) List(ctx context.Context, filter store.Filter) ([]*models.Lead, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	leads, err := s.leads.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list leads")
	}
	return leads, nil
}

// Update patches contact fields on a lead.
func (s *Service) Update(ctx context.Context, leadID id.LeadID, req UpdateRequest) (*models.Lead, error) {
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		return nil, wrapLeadErr(err)
	}

	if req.Name != nil {
		lead.Name = strings.TrimSpace(*req.Name)
	}
	if req.Company != nil {
		lead.Company = strings.TrimSpace(*req.Company)
	}
	if req.Country != nil {
		lead.Country = strings.TrimSpace(*req.Country)
	}
	if req.Phone != nil {
		lead.Phone = models.NormalizePhone(*req.Phone)
	}
	if req.Email != nil {
		lead.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if lead.Phone == "" && lead.Email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "lead requires a phone or email")
	}
	lead.UpdatedAt = requestcontext.Now(ctx)

	if err := s.leads.Update(ctx, lead); err != nil {
		return nil, wrapLeadErr(err)
	}
	s.emit(ctx, lead, "lead.updated")
	return lead, nil
}

// Advance transitions a lead to the next lifecycle status.
func (s *Service) Advance(ctx context.Context, leadID id.LeadID, next models.LeadStatus) (*models.Lead, error) {
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		return nil, wrapLeadErr(err)
	}
	if err := lead.Advance(next, requestcontext.Now(ctx)); err != nil {
		return nil, err
	}
	if err := s.leads.Update(ctx, lead); err != nil {
		return nil, wrapLeadErr(err)
	}
	s.emit(ctx, lead, "lead.advanced")
	s.metrics.IncTransition(string(next))
	return lead, nil
}

// MarkContacted bumps a new lead to contacted after the first outbound
// message. Invoked by the message service; no event is emitted because the
// outbound message event already records the touch.
func (s *Service) MarkContacted(ctx context.Context, leadID id.LeadID) error {
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		return wrapLeadErr(err)
	}
	if lead.Status != models.LeadStatusNew {
		return nil
	}
	lead.MarkContacted(requestcontext.Now(ctx))
	if err := s.leads.Update(ctx, lead); err != nil {
		return wrapLeadErr(err)
	}
	s.metrics.IncTransition(string(models.LeadStatusContacted))
	return nil
}

// Delete removes a lead.
func (s *Service) Delete(ctx context.Context, leadID id.LeadID) error {
	if err := s.leads.Delete(ctx, leadID); err != nil {
		return wrapLeadErr(err)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, lead *models.Lead, eventType string) {
	event, err := events.NewEvent(events.TopicLeads, lead.ID.String(), eventType, requestcontext.Now(ctx), lead)
	if err != nil {
		return
	}
	s.publisher.Publish(ctx, event)
}

func wrapLeadErr(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "lead not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "lead store failure")
}
