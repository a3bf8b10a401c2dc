package goIdentity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MrEthical07/goIdentity/internal/events"
	"github.com/MrEthical07/goIdentity/jwt"
	"github.com/MrEthical07/goIdentity/messaging"
	"github.com/MrEthical07/goIdentity/oauth2"
	"github.com/MrEthical07/goIdentity/permission"
	"github.com/MrEthical07/goIdentity/session"
	"github.com/MrEthical07/goIdentity/store"
	"github.com/MrEthical07/goIdentity/token"
	"github.com/MrEthical07/goIdentity/totp"
)

// Engine runs the identity operations of one tenant. It holds no per-request
// state and is safe for concurrent use.
type Engine struct {
	config Config
	logger *zap.Logger
	now    func() time.Time

	store     store.Backend
	tokens    *token.Issuer
	totp      *totp.Manager
	jwt       *jwt.Manager
	queue     messaging.Queue
	detector  session.Detector
	geo       session.GeoLocator
	providers *oauth2.Registry
	events    *events.Dispatcher
	metrics   *Metrics
}

// Close drains pending domain events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.events.Close()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// EventsDropped reports events discarded because the dispatcher was full.
func (e *Engine) EventsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.events.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

// translate maps store signals to engine errors. notFound and duplicate
// replace the generic kinds when non-nil.
func translate(err error, notFound, duplicate error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		if notFound != nil {
			return notFound
		}
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrDuplicate):
		if duplicate != nil {
			return duplicate
		}
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (e *Engine) newMeta(perms []string) store.Meta {
	now := e.now()
	return store.Meta{
		ID:          uuid.NewString(),
		CreatedAt:   now,
		UpdatedAt:   now,
		Permissions: perms,
	}
}

func (e *Engine) touch(m *store.Meta) {
	m.UpdatedAt = e.now()
}

func (e *Engine) requireElevated(c Caller) error {
	if !c.IsElevated() {
		return ErrElevatedRequired
	}
	return nil
}

// allowed checks action on a record's permissions for c.
func (e *Engine) allowed(c Caller, perms []string, action string) bool {
	if c.IsElevated() {
		return true
	}
	return permission.Allowed(perms, action, c.Roles)
}

// userOf reloads the caller's user so updates run against the latest
// revision.
func (e *Engine) userOf(ctx context.Context, c Caller) (*store.User, error) {
	if c.User == nil {
		return nil, ErrUserRequired
	}
	u, err := e.store.Users().Get(ctx, c.User.ID)
	if err != nil {
		return nil, translate(err, ErrUserNotFound, nil)
	}
	return u, nil
}

func (e *Engine) getUser(ctx context.Context, userID string) (*store.User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	u, err := e.store.Users().Get(ctx, userID)
	if err != nil {
		return nil, translate(err, ErrUserNotFound, nil)
	}
	return u, nil
}

func (e *Engine) updateUser(ctx context.Context, u *store.User) error {
	e.touch(&u.Meta)
	return translate(e.store.Users().Update(ctx, u), ErrUserNotFound, ErrUserAlreadyExists)
}

// send enqueues msg. Delivery is best effort and never fails the request.
func (e *Engine) send(ctx context.Context, msg messaging.Message) {
	if err := e.queue.Enqueue(ctx, msg); err != nil {
		e.metricInc(MetricMessageDropped)
		e.logger.Warn("message enqueue failed",
			zap.String("channel", msg.Channel),
			zap.String("template", msg.Template),
			zap.Error(err),
		)
	}
}

func redactedUser(u *store.User) *store.User {
	out := u.Redacted()
	return &out
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", invalidInput("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalidInput("invalid email %q", email)
	}
	return email, nil
}

func normalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if len(phone) < 2 || len(phone) > 16 || phone[0] != '+' {
		return "", invalidInput("phone must be in E.164 format")
	}
	for _, r := range phone[1:] {
		if r < '0' || r > '9' {
			return "", invalidInput("phone must be in E.164 format")
		}
	}
	return phone, nil
}
