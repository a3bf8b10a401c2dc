package goIdentity

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/internal/events"
)

// Event names.
const (
	EventUserCreated              = "user.created"
	EventUserUpdated              = "user.updated"
	EventUserDeleted              = "user.deleted"
	EventSessionCreated           = "session.created"
	EventSessionUpdated           = "session.updated"
	EventSessionDeleted           = "session.deleted"
	EventTokenCreated             = "token.created"
	EventRecoveryCreated          = "recovery.created"
	EventRecoveryCompleted        = "recovery.completed"
	EventVerificationCreated      = "verification.created"
	EventVerificationCompleted    = "verification.completed"
	EventIdentityCreated          = "identity.created"
	EventIdentityUpdated          = "identity.updated"
	EventIdentityDeleted          = "identity.deleted"
	EventTargetCreated            = "target.created"
	EventTargetUpdated            = "target.updated"
	EventTargetDeleted            = "target.deleted"
	EventMFAAuthenticatorCreated  = "mfa.authenticator.created"
	EventMFAAuthenticatorVerified = "mfa.authenticator.verified"
	EventMFAAuthenticatorDeleted  = "mfa.authenticator.deleted"
	EventMFAChallengeCreated      = "mfa.challenge.created"
	EventMFAChallengeVerified     = "mfa.challenge.verified"
	EventMFARecoveryCodesCreated  = "mfa.recovery_codes.created"
	EventMFARecoveryCodesUpdated  = "mfa.recovery_codes.updated"
)

// Event is one domain event. Payload holds the redacted record.
type Event = events.Event

// EventSink receives events from the engine's dispatcher goroutine.
type EventSink = events.Sink

type NoOpSink = events.NoOpSink

type ChannelSink = events.ChannelSink

type JSONWriterSink = events.JSONWriterSink

type ZapSink = events.ZapSink

func NewChannelSink(buffer int) *ChannelSink {
	return events.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return events.NewJSONWriterSink(w)
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return events.NewZapSink(logger)
}

func (e *Engine) emit(ctx context.Context, name string, c Caller, userID, resourceID string, payload any) {
	if e.events == nil {
		return
	}
	e.events.Emit(ctx, Event{
		Timestamp:  e.now(),
		Name:       name,
		ActorID:    c.actorID(),
		UserID:     userID,
		ResourceID: resourceID,
		Payload:    payload,
	})
}
