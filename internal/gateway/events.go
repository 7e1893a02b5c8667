package gateway

import (
	"context"

	"github.com/rickgao/devicechat/internal/protocol"
)

func (g *Gateway) checkRegistration(ctx context.Context, c Client, env protocol.Envelope) error {
	deviceID, err := g.deviceArg(env)
	if err != nil {
		return err
	}

	reg, err := g.identity.CheckRegistration(ctx, deviceID)
	if err != nil {
		return err
	}

	return g.reply(c, protocol.EventRegistrationStatus, protocol.RegistrationStatus{
		IsRegistered:    reg.Registered,
		UserName:        reg.Username,
		ProfileImageURL: reg.ProfileImageURL,
	})
}

func (g *Gateway) register(ctx context.Context, c Client, env protocol.Envelope) error {
	var req protocol.RegisterRequest
	if err := g.payload(env, &req); err != nil {
		return err
	}

	// A connection switching devices releases the one it held.
	if previous := c.DeviceID(); previous != "" && previous != req.DeviceID {
		c.SetDeviceID("")
		if _, err := g.presence.OnDisconnect(ctx, previous, c.ID()); err != nil {
			g.logger.Warn("failed to release previous device",
				"device_id", previous,
				"session_id", c.ID(),
				"error", err,
			)
		}
	}

	if err := g.identity.Register(ctx, c.ID(), req.DeviceID, req.Username, req.ProfileImageURL); err != nil {
		return err
	}
	c.SetDeviceID(req.DeviceID)
	return nil
}

func (g *Gateway) loadMessages(ctx context.Context, c Client, env protocol.Envelope) error {
	var req protocol.LoadMessagesRequest
	if err := g.payload(env, &req); err != nil {
		return err
	}

	history, err := g.router.LoadHistory(ctx, req.Sender, req.Recipient)
	if err != nil {
		return err
	}
	return g.reply(c, protocol.EventLoadMessages, history)
}

func (g *Gateway) privateMessage(ctx context.Context, c Client, env protocol.Envelope) error {
	senderID, err := registered(c)
	if err != nil {
		return err
	}

	var req protocol.PrivateMessageRequest
	if err := g.payload(env, &req); err != nil {
		return err
	}

	_, _, err = g.router.Send(ctx, senderID, req.Recipient, req.Message)
	return err
}

func (g *Gateway) userInfo(ctx context.Context, c Client, env protocol.Envelope) error {
	deviceID, err := g.deviceArg(env)
	if err != nil {
		return err
	}

	device, err := g.identity.GetProfile(ctx, deviceID)
	if err != nil {
		return err
	}
	return g.reply(c, protocol.EventUserInfo, device)
}

func (g *Gateway) userStatus(ctx context.Context, c Client, env protocol.Envelope) error {
	deviceID, err := g.deviceArg(env)
	if err != nil {
		return err
	}

	status, err := g.identity.GetStatus(ctx, deviceID)
	if err != nil {
		return err
	}
	return g.reply(c, protocol.EventUserStatus, protocol.UserStatus{Status: status})
}

func (g *Gateway) typing(_ context.Context, c Client, env protocol.Envelope) error {
	deviceID, err := registered(c)
	if err != nil {
		return err
	}
	recipientID, err := g.deviceArg(env)
	if err != nil {
		return err
	}

	_, err = g.presence.OnTyping(deviceID, recipientID)
	return err
}

func (g *Gateway) stopTyping(ctx context.Context, c Client, env protocol.Envelope) error {
	deviceID, err := registered(c)
	if err != nil {
		return err
	}
	recipientID, err := g.deviceArg(env)
	if err != nil {
		return err
	}

	_, err = g.presence.OnStopTyping(ctx, deviceID, recipientID)
	return err
}
