package goIdentity

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/store"
)

// TargetInput describes a contact channel to register for a user.
type TargetInput struct {
	TargetID     string
	ProviderType string
	Identifier   string
	ProviderID   string
	Name         string
}

// TargetUpdate changes the non-nil fields of a target.
type TargetUpdate struct {
	Identifier *string
	ProviderID *string
	Name       *string
}

func normalizeIdentifier(providerType, identifier string) (string, error) {
	switch providerType {
	case store.TargetEmail:
		return normalizeEmail(identifier)
	case store.TargetSMS:
		return normalizePhone(identifier)
	case store.TargetPush:
		identifier = strings.TrimSpace(identifier)
		if identifier == "" {
			return "", invalidInput("push identifier is required")
		}
		return identifier, nil
	default:
		return "", invalidInput("unknown provider type %q", providerType)
	}
}

func (e *Engine) insertTarget(ctx context.Context, userID string, t store.Target) (*store.Target, error) {
	id := t.ID
	t.Meta = e.newMeta(permission.Owner(userID))
	if id != "" {
		t.ID = id
	}
	t.UserID = userID
	if err := e.store.Targets().Create(ctx, &t); err != nil {
		return nil, translate(err, nil, ErrTargetAlreadyExists)
	}
	return &t, nil
}

// syncTarget moves the user's target for oldIdentifier to newIdentifier, or
// creates it when none exists.
func (e *Engine) syncTarget(ctx context.Context, c Caller, userID, providerType, oldIdentifier, newIdentifier string) error {
	if oldIdentifier == newIdentifier {
		return nil
	}
	if newIdentifier != "" {
		owned, err := e.targetOwnedBy(ctx, userID, providerType, newIdentifier)
		if err != nil || owned {
			return err
		}
	}
	if oldIdentifier != "" {
		t, err := e.store.Targets().FindByIdentifier(ctx, providerType, oldIdentifier)
		switch {
		case err == nil && t.UserID == userID:
			t.Identifier = newIdentifier
			e.touch(&t.Meta)
			if err := e.store.Targets().Update(ctx, t); err != nil {
				return translate(err, ErrTargetNotFound, ErrTargetAlreadyExists)
			}
			e.emit(ctx, EventTargetUpdated, c, userID, t.ID, *t)
			return nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return translate(err, nil, nil)
		}
	}
	t, err := e.insertTarget(ctx, userID, store.Target{ProviderType: providerType, Identifier: newIdentifier})
	if err != nil {
		return err
	}
	e.emit(ctx, EventTargetCreated, c, userID, t.ID, *t)
	return nil
}

// targetOwnedBy reports whether userID already has a target for
// identifier. A target held by another user is ErrTargetAlreadyExists.
func (e *Engine) targetOwnedBy(ctx context.Context, userID, providerType, identifier string) (bool, error) {
	t, err := e.store.Targets().FindByIdentifier(ctx, providerType, identifier)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	case err != nil:
		return false, translate(err, nil, nil)
	case t.UserID != userID:
		return false, ErrTargetAlreadyExists
	}
	return true, nil
}

// CreateTarget registers a contact channel for userID.
func (e *Engine) CreateTarget(ctx context.Context, c Caller, userID string, in TargetInput) (*store.Target, error) {
	if err := e.requireElevated(c); err != nil {
		return nil, err
	}
	if _, err := e.getUser(ctx, userID); err != nil {
		return nil, err
	}
	identifier, err := normalizeIdentifier(in.ProviderType, in.Identifier)
	if err != nil {
		return nil, err
	}
	t, err := e.insertTarget(ctx, userID, store.Target{
		Meta:         store.Meta{ID: in.TargetID},
		ProviderType: in.ProviderType,
		Identifier:   identifier,
		ProviderID:   in.ProviderID,
		Name:         in.Name,
	})
	if err != nil {
		return nil, err
	}
	e.emit(ctx, EventTargetCreated, c, userID, t.ID, *t)
	return t, nil
}

func (e *Engine) ListUserTargets(ctx context.Context, c Caller, userID string) ([]*store.Target, error) {
	if err := e.requireElevated(c); err != nil {
		return nil, err
	}
	if _, err := e.getUser(ctx, userID); err != nil {
		return nil, err
	}
	targets, err := e.store.Targets().ListByUser(ctx, userID)
	if err != nil {
		return nil, translate(err, nil, nil)
	}
	return targets, nil
}

func (e *Engine) userTarget(ctx context.Context, userID, targetID string) (*store.Target, error) {
	t, err := e.store.Targets().Get(ctx, targetID)
	if err != nil {
		return nil, translate(err, ErrTargetNotFound, nil)
	}
	if t.UserID != userID {
		return nil, ErrTargetNotFound
	}
	return t, nil
}

// UpdateTarget changes a target. A new identifier marks it unexpired.
func (e *Engine) UpdateTarget(ctx context.Context, c Caller, userID, targetID string, in TargetUpdate) (*store.Target, error) {
	if err := e.requireElevated(c); err != nil {
		return nil, err
	}
	t, err := e.userTarget(ctx, userID, targetID)
	if err != nil {
		return nil, err
	}
	if in.Identifier != nil {
		identifier, err := normalizeIdentifier(t.ProviderType, *in.Identifier)
		if err != nil {
			return nil, err
		}
		t.Identifier = identifier
		t.Expired = false
	}
	if in.ProviderID != nil {
		t.ProviderID = *in.ProviderID
	}
	if in.Name != nil {
		t.Name = *in.Name
	}
	e.touch(&t.Meta)
	if err := e.store.Targets().Update(ctx, t); err != nil {
		return nil, translate(err, ErrTargetNotFound, ErrTargetAlreadyExists)
	}
	e.emit(ctx, EventTargetUpdated, c, userID, t.ID, *t)
	return t, nil
}

// DeleteTarget removes targetID from userID.
func (e *Engine) DeleteTarget(ctx context.Context, c Caller, userID, targetID string) error {
	if err := e.requireElevated(c); err != nil {
		return err
	}
	t, err := e.userTarget(ctx, userID, targetID)
	if err != nil {
		return err
	}
	if err := e.store.Targets().Delete(ctx, t.ID); err != nil {
		return translate(err, ErrTargetNotFound, nil)
	}
	e.emit(ctx, EventTargetDeleted, c, userID, t.ID, *t)
	return nil
}
