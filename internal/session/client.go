package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/satriahrh/sandiwara/internal/protocol"
)

// Client drives the connection -> session -> task -> completion lifecycle over one
// transport and keeps a Tracker in step with every frame sent and received.
type Client struct {
	transport Transport
	tracker   *Tracker
	logger    *zap.Logger

	connectID string
}

func NewClient(transport Transport, logger *zap.Logger) *Client {
	return &Client{
		transport: transport,
		tracker:   NewTracker(),
		logger:    logger,
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return c.tracker.State()
}

// ConnectID returns the id the server assigned in ConnectionStarted.
func (c *Client) ConnectID() string {
	return c.connectID
}

// WriteMessage records msg on the tracker and writes it.
func (c *Client) WriteMessage(msg *protocol.Message) error {
	if msg.HasEvent() {
		if err := c.tracker.OnSend(msg.Event); err != nil {
			return err
		}
	}
	return c.transport.WriteMessage(msg)
}

// ReceiveMessage receives one message and records it on the tracker.
func (c *Client) ReceiveMessage(ctx context.Context) (*protocol.Message, error) {
	msg, err := c.transport.ReceiveMessage(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.tracker.OnReceive(msg); err != nil {
		c.logger.Warn("Lifecycle violation",
			zap.Stringer("state", c.tracker.State()),
			zap.Stringer("message", msg),
			zap.Error(err))
		return nil, err
	}
	return msg, nil
}

// Connect sends StartConnection and waits for ConnectionStarted.
func (c *Client) Connect(ctx context.Context) error {
	if err := StartConnection(c); err != nil {
		return err
	}
	msg, err := WaitForEvent(ctx, c, protocol.MsgTypeFullServerResponse, protocol.EventConnectionStarted)
	if err != nil {
		return fmt.Errorf("start connection: %w", err)
	}
	c.connectID = msg.ConnectID
	c.logger.Info("Speech connection started", zap.String("connectID", msg.ConnectID))
	return nil
}

// StartSession sends StartSession and waits for SessionStarted. A session that ended
// earlier on this connection is cleared first.
func (c *Client) StartSession(ctx context.Context, sessionID string, payload []byte) error {
	if c.tracker.State().Terminal() && c.tracker.State() != StateClosed {
		if err := c.tracker.Reset(); err != nil {
			return err
		}
	}
	if err := StartSession(c, payload, sessionID); err != nil {
		return err
	}
	if _, err := WaitForEvent(ctx, c, protocol.MsgTypeFullServerResponse, protocol.EventSessionStarted); err != nil {
		return fmt.Errorf("start session %s: %w", sessionID, err)
	}
	c.logger.Debug("Speech session started", zap.String("sessionID", sessionID))
	return nil
}

// SendTask submits payload to the running session.
func (c *Client) SendTask(sessionID string, payload []byte) error {
	return TaskRequest(c, payload, sessionID)
}

// FinishSession signals the end of input for sessionID.
func (c *Client) FinishSession(sessionID string) error {
	return FinishSession(c, sessionID)
}

// CollectAudio gathers audio until SessionFinished.
func (c *Client) CollectAudio(ctx context.Context) ([]byte, error) {
	return CollectAudio(ctx, c, c.logger)
}

// StreamAudio passes audio chunks to fn until SessionFinished.
func (c *Client) StreamAudio(ctx context.Context, fn func(chunk []byte) error) (int, error) {
	return StreamAudio(ctx, c, c.logger, fn)
}

// CancelSession sends CancelSession and discards frames until the session ends.
func (c *Client) CancelSession(ctx context.Context, sessionID string) error {
	if err := CancelSession(c, sessionID); err != nil {
		return err
	}
	for {
		msg, err := c.ReceiveMessage(ctx)
		if err != nil {
			return fmt.Errorf("cancel session %s: %w", sessionID, err)
		}
		if msg.Type == protocol.MsgTypeError {
			return protocol.NewServerError(msg)
		}
		switch msg.Event {
		case protocol.EventSessionCanceled, protocol.EventSessionFinished:
			c.logger.Info("Speech session ended after cancel",
				zap.String("sessionID", sessionID),
				zap.Stringer("event", msg.Event))
			return nil
		case protocol.EventSessionFailed:
			return fmt.Errorf("cancel session %s: %w", sessionID, protocol.Unexpected(
				protocol.MsgTypeFullServerResponse, protocol.EventSessionCanceled, msg))
		}
	}
}

// Disconnect sends FinishConnection and waits for ConnectionFinished.
func (c *Client) Disconnect(ctx context.Context) error {
	if err := FinishConnection(c); err != nil {
		return err
	}
	if _, err := WaitForEvent(ctx, c, protocol.MsgTypeFullServerResponse, protocol.EventConnectionFinished); err != nil {
		return fmt.Errorf("finish connection: %w", err)
	}
	c.logger.Info("Speech connection finished", zap.String("connectID", c.connectID))
	return nil
}
