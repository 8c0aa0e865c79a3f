package realtime

import (
	"context"
	"net/http"

	"github.com/Vovarama1992/market-messaging/internal/messaging"
)

// UserChannel namespaces ids by role; customer and provider ids come from
// different tables and may collide.
func UserChannel(role messaging.Role, id string) string {
	return string(role) + ":" + id
}

type publisher struct {
	bus Bus
}

// NewPublisher turns messaging events into SSE messages for both participants.
func NewPublisher(bus Bus) messaging.Publisher {
	return &publisher{bus: bus}
}

func (p *publisher) Publish(ctx context.Context, ev messaging.Event) error {
	for _, ch := range []string{
		UserChannel(messaging.RoleCustomer, ev.CustomerID),
		UserChannel(messaging.RoleProvider, ev.ProviderID),
	} {
		if err := p.bus.Publish(ctx, SSEMessage{Channel: ch, Event: string(ev.Type), Data: ev}); err != nil {
			return err
		}
	}
	return nil
}

// StreamHandler serves GET /api/events. It must sit behind
// messaging.AuthMiddleware.
func StreamHandler(hub *Hub) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewer, ok := messaging.ViewerFrom(r.Context())
		if !ok {
			http.Error(w, "not authenticated", http.StatusUnauthorized)
			return
		}
		client := hub.NewClient()
		hub.AddChannel(client, UserChannel(viewer.Role, viewer.ID))
		defer hub.CloseClient(client)

		hub.log.Info("SSE stream open", "client", client.ID, "role", viewer.Role)
		hub.Serve(w, r, client)
	})
}
