package services

import (
	"context"
	"fmt"

	"koperasi/internal/amqp"
	"koperasi/internal/api"
	"koperasi/internal/confirm"
	"koperasi/internal/core"
	applog "koperasi/internal/log"
)

// ModerationAPI is the part of the API admins moderate with.
type ModerationAPI interface {
	ApproveLoan(ctx context.Context, id core.ID) error
	RejectLoan(ctx context.Context, id core.ID) error
	ApproveSettlement(ctx context.Context, id core.ID) error
	RejectSettlement(ctx context.Context, id core.ID) error
	UpdateSaving(ctx context.Context, id core.ID, u api.SavingUpdate) error
	DeleteSaving(ctx context.Context, id core.ID) error
}

// Publisher announces successful mutations; *amqp.Client is one.
type Publisher interface {
	PublishMutation(ctx context.Context, ev *amqp.MutationEvent) error
}

// Actor names who is acting; *session.Session is one.
type Actor interface {
	User() (core.User, bool)
}

const (
	ResourceLoans       = "loans"
	ResourceSettlements = "settlements"
	ResourceSavings     = "savings"
)

// Moderation runs admin mutations against the API and publishes an audit
// event after each one that succeeds.
type Moderation struct {
	api       ModerationAPI
	publisher Publisher
	actor     Actor
	logger    *applog.Logger
}

// NewModeration returns a Moderation. publisher and actor may be nil.
func NewModeration(a ModerationAPI, publisher Publisher, actor Actor, logger *applog.Logger) *Moderation {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Moderation{
		api:       a,
		publisher: publisher,
		actor:     actor,
		logger:    logger.WithComponent(applog.ComponentModeration),
	}
}

func (m *Moderation) ApproveLoan(ctx context.Context, id core.ID) error {
	if err := m.api.ApproveLoan(ctx, id); err != nil {
		return fmt.Errorf("approve loan %s: %w", id, err)
	}
	m.publish(ctx, ResourceLoans, id, applog.OpApprove, "")
	return nil
}

func (m *Moderation) RejectLoan(ctx context.Context, id core.ID) error {
	if err := m.api.RejectLoan(ctx, id); err != nil {
		return fmt.Errorf("reject loan %s: %w", id, err)
	}
	m.publish(ctx, ResourceLoans, id, applog.OpReject, "")
	return nil
}

func (m *Moderation) ApproveSettlement(ctx context.Context, id core.ID) error {
	if err := m.api.ApproveSettlement(ctx, id); err != nil {
		return fmt.Errorf("approve settlement %s: %w", id, err)
	}
	m.publish(ctx, ResourceSettlements, id, applog.OpApprove, "")
	return nil
}

func (m *Moderation) RejectSettlement(ctx context.Context, id core.ID) error {
	if err := m.api.RejectSettlement(ctx, id); err != nil {
		return fmt.Errorf("reject settlement %s: %w", id, err)
	}
	m.publish(ctx, ResourceSettlements, id, applog.OpReject, "")
	return nil
}

// UpdateSaving changes amount and type of a saving. The amount must be at
// least 1 and the type a known one.
func (m *Moderation) UpdateSaving(ctx context.Context, id core.ID, amount core.Money, typ core.SavingType) error {
	if amount.LessThan(core.NewMoney(1).Decimal) {
		return core.ErrInvalidAmount
	}
	if !typ.Valid() {
		return core.ErrInvalidSavingType
	}
	if err := m.api.UpdateSaving(ctx, id, api.SavingUpdate{Amount: amount, Type: typ}); err != nil {
		return fmt.Errorf("update saving %s: %w", id, err)
	}
	m.publish(ctx, ResourceSavings, id, applog.OpUpdate, string(typ)+" "+amount.Plain())
	return nil
}

func (m *Moderation) DeleteSaving(ctx context.Context, id core.ID) error {
	if err := m.api.DeleteSaving(ctx, id); err != nil {
		return fmt.Errorf("delete saving %s: %w", id, err)
	}
	m.publish(ctx, ResourceSavings, id, applog.OpDelete, "")
	return nil
}

// LoanMutation adapts loan moderation to a confirm dialog.
func (m *Moderation) LoanMutation() confirm.Mutation[core.Loan] {
	return func(ctx context.Context, l core.Loan, a confirm.Action) error {
		switch a {
		case confirm.ActionApprove:
			return m.ApproveLoan(ctx, l.ID)
		case confirm.ActionReject:
			return m.RejectLoan(ctx, l.ID)
		}
		return fmt.Errorf("loan action %q: %w", a, core.ErrInvalidStatus)
	}
}

func (m *Moderation) SettlementMutation() confirm.Mutation[core.Settlement] {
	return func(ctx context.Context, s core.Settlement, a confirm.Action) error {
		switch a {
		case confirm.ActionApprove:
			return m.ApproveSettlement(ctx, s.ID)
		case confirm.ActionReject:
			return m.RejectSettlement(ctx, s.ID)
		}
		return fmt.Errorf("settlement action %q: %w", a, core.ErrInvalidStatus)
	}
}

// SavingMutation edits with the amount and type carried by the row.
func (m *Moderation) SavingMutation() confirm.Mutation[core.Saving] {
	return func(ctx context.Context, s core.Saving, a confirm.Action) error {
		switch a {
		case confirm.ActionEdit:
			return m.UpdateSaving(ctx, s.ID, s.Amount, s.Type)
		case confirm.ActionDelete:
			return m.DeleteSaving(ctx, s.ID)
		}
		return fmt.Errorf("saving action %q: %w", a, core.ErrInvalidStatus)
	}
}

// publish never fails the mutation: the server change already happened.
func (m *Moderation) publish(ctx context.Context, resource string, id core.ID, action, detail string) {
	m.logger.InfoContext(ctx, "Mutation applied",
		applog.FieldResource, resource,
		applog.FieldResourceID, id.String(),
		applog.FieldAction, action)

	if m.publisher == nil {
		m.logger.DebugContext(ctx, "AMQP client not available, skipping audit event")
		return
	}
	ev := amqp.NewMutationEvent(resource, id.String(), action)
	ev.Detail = detail
	if m.actor != nil {
		if u, ok := m.actor.User(); ok {
			ev.ActorID = u.ID.String()
		}
	}
	if err := m.publisher.PublishMutation(ctx, ev); err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish audit event",
			"event_id", ev.ID,
			applog.FieldResource, resource,
			applog.FieldResourceID, id.String(),
			applog.FieldError, err)
	}
}
