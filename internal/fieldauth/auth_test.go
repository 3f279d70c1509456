package fieldauth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/m3rciful/meterdesk/core/logger"
	"github.com/m3rciful/meterdesk/internal/domain"
	"github.com/m3rciful/meterdesk/internal/fieldauth"
	"github.com/m3rciful/meterdesk/internal/storage/memory"
)

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	hash, err := fieldauth.HashPassword("s3cret")
	require.NoError(t, err)

	store := memory.New()
	active := store.AddController(domain.Controller{Username: "ivanov", PasswordHash: hash, AreaID: 3, Active: true})
	store.AddController(domain.Controller{Username: "retired", PasswordHash: hash, AreaID: 3})
	auth := fieldauth.NewAuthenticator(store)

	c, err := auth.Authenticate(ctx, " Ivanov ", "s3cret")
	require.NoError(t, err)
	require.Equal(t, active.ID, c.ID)
	require.EqualValues(t, 3, c.AreaID)

	for _, tc := range []struct{ user, pass string }{
		{"ivanov", "wrong"},
		{"nobody", "s3cret"},
		{"retired", "s3cret"},
	} {
		_, err := auth.Authenticate(ctx, tc.user, tc.pass)
		require.True(t, domain.HasReason(err, domain.ReasonBadCredentials), tc.user)
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	_, err := fieldauth.HashPassword("")
	require.Error(t, err)
}

func TestAuthenticateLogsUnderServiceComponent(t *testing.T) {
	var buf bytes.Buffer
	ctx := logger.WithLogger(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))
	hash, err := fieldauth.HashPassword("s3cret")
	require.NoError(t, err)
	store := memory.New()
	store.AddController(domain.Controller{Username: "ivanov", PasswordHash: hash, Active: true})
	auth := fieldauth.NewAuthenticator(store)

	_, err = auth.Authenticate(ctx, "ivanov", "s3cret")
	require.NoError(t, err)
	_, err = auth.Authenticate(ctx, "ivanov", "guess")
	require.Error(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		require.Equal(t, "service.fieldauth", rec["component"])
		require.Equal(t, "authenticate", rec["event"])
	}
	require.NotContains(t, buf.String(), "s3cret")
	require.NotContains(t, buf.String(), "guess")
}
