package authstub

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sail-program/sail-gateway/internal/authclient"
	"github.com/sail-program/sail-gateway/internal/repository"
)

// newStub serves the stub over a real listener so the production client
// can talk to it.
func newStub(t *testing.T) (*Server, *authclient.Client) {
	t.Helper()
	accounts := NewAccounts(repository.NewMemoryAccountRepository(), 4)
	srv := NewServer(accounts, NewTokenManager("test-secret", time.Minute, time.Hour), nil)
	require.NoError(t, srv.Seed(context.Background(), "admin@example.com", "pw", "admin"))

	app := fiber.New()
	srv.Register(app.Group("/api"))
	httpSrv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(httpSrv.Close)

	return srv, authclient.New(httpSrv.URL+"/api", httpSrv.Client())
}

func TestStub_LoginVerifyRefresh(t *testing.T) {
	_, client := newStub(t)
	ctx := context.Background()

	resp, err := client.Login(ctx, "admin@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "admin", resp.User.Role)
	assert.Equal(t, "1", string(resp.User.ID))

	require.NoError(t, client.Verify(ctx, resp.Access))

	err = client.Verify(ctx, resp.Refresh)
	assert.True(t, authclient.IsRejection(err), "refresh token is not an access token")

	access, err := client.Refresh(ctx, resp.Refresh)
	require.NoError(t, err)
	require.NoError(t, client.Verify(ctx, access))

	_, err = client.Refresh(ctx, "garbage")
	assert.True(t, authclient.IsRejection(err))
}

func TestStub_LoginRejectsBadPassword(t *testing.T) {
	_, client := newStub(t)

	_, err := client.Login(context.Background(), "admin@example.com", "nope")
	require.Error(t, err)
	var apiErr *authclient.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
	assert.Contains(t, apiErr.Detail, "No active account")
}

func TestStub_Register(t *testing.T) {
	_, client := newStub(t)
	ctx := context.Background()

	resp, err := client.Register(ctx, authclient.RegisterRequest{
		Email: "org@example.com", Password: "pw", FirstName: "O", LastName: "Rg",
		Role: "organization", OrganizationName: "Legal Aid",
	})
	require.NoError(t, err)
	assert.Equal(t, "Organization", resp.User.Role)

	_, err = client.Register(ctx, authclient.RegisterRequest{Email: "org@example.com", Password: "pw", Role: "Student"})
	require.Error(t, err)
	assert.True(t, authclient.IsRejection(err))

	_, err = client.Register(ctx, authclient.RegisterRequest{Email: "x@example.com", Password: "pw", Role: "Organization"})
	assert.True(t, authclient.IsRejection(err))

	_, err = client.Login(ctx, "org@example.com", "pw")
	assert.NoError(t, err)
}
