package live

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/campuscare/counseling-service/internal/domain"
	apperrors "github.com/campuscare/counseling-service/pkg/util/errorutil"
)

// Broker is the message-side surface the websocket endpoint drives. The
// service layer implements it; keeping the interface here avoids a
// dependency from services back onto the transport.
type Broker interface {
	Send(ctx context.Context, ticketID string, sender *domain.User, body string) (*domain.Message, error)
	Attach(ctx context.Context, ticketID string, party *domain.User, ch *Channel, since *time.Time) error
	Detach(ticketID, partyID string, ch *Channel)
}

// Authenticator resolves a raw bearer token to an active user. Websocket
// clients carry the token as a query parameter because browsers cannot
// set headers on the upgrade request.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// HandlerConfig tunes the websocket endpoint.
type HandlerConfig struct {
	OutboundBufferSize int
	WriteTimeout       time.Duration
}

// Handler terminates websocket connections for ticket streams.
type Handler struct {
	broker Broker
	auth   Authenticator
	cfg    HandlerConfig
	logger *zap.Logger
}

// NewHandler constructs the handler.
func NewHandler(broker Broker, auth Authenticator, cfg HandlerConfig, logger *zap.Logger) *Handler {
	return &Handler{broker: broker, auth: auth, cfg: cfg, logger: logger}
}

// Upgrade gates the route to websocket upgrade requests.
func (h *Handler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

type inboundFrame struct {
	Message string `json:"message"`
}

type errorFrame struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Serve returns the connection handler for GET /ws/tickets/:id. The flow
// is authenticate, authorize-and-replay via Attach, then pump inbound
// frames into the broker. Sender identity always comes from the token;
// anything the client claims about itself is ignored.
func (h *Handler) Serve() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		ticketID := conn.Params("id")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		user, err := h.auth.Authenticate(ctx, conn.Query("token"))
		cancel()
		if err != nil {
			h.reject(conn, err)
			return
		}

		var since *time.Time
		if raw := conn.Query("since"); raw != "" {
			if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
				since = &ts
			}
		}

		ch := NewChannel(conn, h.cfg.OutboundBufferSize, h.cfg.WriteTimeout)

		attachCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err = h.broker.Attach(attachCtx, ticketID, user, ch, since)
		cancel()
		if err != nil {
			h.sendError(ch, err)
			ch.Close()
			return
		}
		defer func() {
			h.broker.Detach(ticketID, user.ID, ch)
			ch.Close()
		}()

		h.logger.Debug("live session attached",
			zap.String("ticket_id", ticketID),
			zap.String("party_id", user.ID))

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				h.sendError(ch, apperrors.NewValidationError("malformed frame", nil))
				continue
			}

			sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			_, err = h.broker.Send(sendCtx, ticketID, user, frame.Message)
			cancel()
			if err != nil {
				h.sendError(ch, err)
			}
		}
	})
}

// sendError pushes an error frame over the already established channel.
func (h *Handler) sendError(ch *Channel, err error) {
	domainErr := apperrors.ToDomainError(err)
	if sendErr := ch.Send(errorFrame{Error: domainErr.Message, Code: domainErr.Code}); sendErr != nil {
		h.logger.Debug("failed to push error frame", zap.Error(sendErr))
	}
}

// reject writes one error frame directly and closes the raw connection;
// no channel exists yet at this point.
func (h *Handler) reject(conn *websocket.Conn, err error) {
	domainErr := apperrors.ToDomainError(err)
	data, marshalErr := json.Marshal(errorFrame{Error: domainErr.Message, Code: domainErr.Code})
	if marshalErr == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
	_ = conn.Close()
}
