package scenario

import (
	"context"

	"go.uber.org/zap"

	"github.com/Checker-Finance/apitests/internal/httpclient"
	"github.com/Checker-Finance/apitests/internal/smarti"
)

// Cleanup deletes every client and every user except the admin accounts.
// It stops at the first failed request; running it twice is harmless.
func (s *Suite) Cleanup(ctx context.Context) error {
	clients, err := s.listClients(ctx, s.admin)
	if err != nil {
		return err
	}
	for _, cl := range clients {
		id := cl.ID
		if _, err := s.send(ctx, "DeleteClient", smarti.NoContent, func(ctx context.Context) (*httpclient.Response, error) {
			return s.client.DeleteClient(ctx, s.admin, id)
		}); err != nil {
			return err
		}
	}

	resp, err := s.send(ctx, "ListUsers", smarti.OKSuccess, func(ctx context.Context) (*httpclient.Response, error) {
		return s.client.ListUsers(ctx, s.admin, nil)
	})
	if err != nil {
		return err
	}
	users, err := smarti.DecodeEntities(resp)
	if err != nil {
		return err
	}
	deleted := 0
	for _, u := range users {
		login := u.Login
		if login == ProtectedLogin || login == s.admin.Username() {
			continue
		}
		if _, err := s.send(ctx, "DeleteUser", smarti.NoContent, func(ctx context.Context) (*httpclient.Response, error) {
			return s.client.DeleteUser(ctx, s.admin, login)
		}); err != nil {
			return err
		}
		deleted++
	}

	s.logger.Info("scenario.cleanup_done",
		zap.Int("clients_deleted", len(clients)),
		zap.Int("users_deleted", deleted))
	return nil
}
