package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"LavTutorClient/internal/adapter"
	"LavTutorClient/internal/config"
	"LavTutorClient/internal/helper"
	"LavTutorClient/internal/realtime"
	"LavTutorClient/internal/service"
	"LavTutorClient/internal/store"

	"github.com/go-playground/validator/v10"
)

// Init resolves the user's identity and wires the whole client: REST
// adapter, transport session, the three stores, and the two services.
// The session is not dialed yet; ChatService.Start does that once the
// caller is ready.
func Init(ctx context.Context, cfg *config.AppConfig, httpClient *http.Client, validate *validator.Validate) (*service.ChatService, error) {
	api := adapter.NewAPIClient(cfg, httpClient)

	user, err := api.ResolveIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	slog.Info("Resolved platform identity", "user_id", user.IDNumber)

	if exp, err := helper.TokenExpiry(cfg.SessionToken); err == nil && !exp.IsZero() && exp.Before(time.Now()) {
		slog.Warn("Session token is expired, the backend will likely reject the socket", "expired_at", exp)
	}

	session := realtime.NewSession(cfg.SocketURL, user.IDNumber, time.Duration(cfg.ReconnectSeconds)*time.Second)
	messages := store.NewMessageStore()
	roster := store.NewRoster()

	// the notification service probes the open conversation through the
	// message store so it never acts on a stale snapshot
	notifications := service.NewNotificationService(api, store.NewNotificationStore(), user.IDNumber, messages.CurrentID)

	return service.NewChatService(cfg, api, validate, session, messages, roster, notifications, *user), nil
}
