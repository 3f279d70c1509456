// Package fieldauth gates the controller channel behind a login and password.
package fieldauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/internal/domain"
)

const component = "service.fieldauth"

// ErrNoController is returned by stores when the username is unknown.
var ErrNoController = errors.New("controller not found")

// Store is the persistence required by Authenticator.
type Store interface {
	ControllerByUsername(ctx context.Context, username string) (domain.Controller, error)
}

// Authenticator checks controller credentials.
type Authenticator struct {
	store Store
}

// NewAuthenticator wires an Authenticator.
func NewAuthenticator(store Store) *Authenticator {
	return &Authenticator{store: store}
}

// Authenticate returns the active controller matching username and password.
// Unknown users, wrong passwords and inactive accounts are indistinguishable to the caller.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (domain.Controller, error) {
	username = strings.TrimSpace(username)
	c, err := a.store.ControllerByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrNoController):
		a.reject(ctx, username, "unknown")
		return domain.Controller{}, domain.Invalid(domain.ReasonBadCredentials, nil)
	case err != nil:
		logger.Error(ctx, component, "authenticate",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		return domain.Controller{}, err
	}
	if !c.Active {
		a.reject(ctx, username, "inactive")
		return domain.Controller{}, domain.Invalid(domain.ReasonBadCredentials, nil)
	}
	if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)) != nil {
		a.reject(ctx, username, "password")
		return domain.Controller{}, domain.Invalid(domain.ReasonBadCredentials, nil)
	}
	logger.Info(ctx, component, "authenticate",
		slog.String("status", "ok"),
		slog.Int64("controller_id", c.ID),
		slog.Int64("area_id", c.AreaID),
	)
	return c, nil
}

func (a *Authenticator) reject(ctx context.Context, username, why string) {
	logger.Warn(ctx, component, "authenticate",
		slog.String("status", "fail"),
		slog.String("user", logger.SanitizeLimit(username, 32)),
		slog.String("reason", why),
	)
}

// HashPassword returns a bcrypt hash suitable for the controllers table.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}
