// Copyright 2024 The Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package mon

import (
	"context"
	"time"

	cerrors "github.com/chenggangschool/cephcore/util/errors"
	"github.com/chenggangschool/cephcore/util/log"
	"github.com/chenggangschool/cephcore/auth"
	"github.com/chenggangschool/cephcore/messenger"
	"github.com/chenggangschool/cephcore/proto"
)

// Dispatch implements messenger.Dispatcher. It is invoked from whatever
// goroutine the Messenger uses to deliver inbound messages; it must not
// block for long, so everything here is either a quick state update
// under the lock or a Send issued without waiting for a reply.
func (c *Client) Dispatch(conn messenger.Connection, msg *proto.Message) {
	c.mu.Lock()
	stray := conn != c.conn
	c.mu.Unlock()
	if stray {
		log.LogDebugf("mon: dropping message %s from stale connection", msg.Type)
		return
	}

	switch msg.Type {
	case proto.MsgMonMap:
		c.handleMonMap(msg.Body)
	case proto.MsgAuthReply:
		c.handleAuthReply(conn, msg.Body)
	case proto.MsgAuthRotatingReply:
		c.handleAuthRotatingReply(msg.Body)
	case proto.MsgMonSubscribeAck:
		c.handleSubscribeAck(msg.Body)
	case proto.MsgMonGetVersionReply:
		c.handleGetVersionReply(msg.Body)
	case proto.MsgMonKeepaliveAck:
		c.handleKeepaliveAck(msg.Body)
	default:
		log.LogWarnf("mon: unexpected message type %s", msg.Type)
	}
}

// HandleReset implements messenger.Dispatcher: the connection was reset
// by the peer or the transport. This re-enters hunting rather than
// trying to resume the old session, matching reopen_session's
// synchronous-boundary contract.
func (c *Client) HandleReset(conn messenger.Connection) {
	c.mu.Lock()
	stray := conn != c.conn
	c.mu.Unlock()
	if stray {
		return
	}
	log.LogWarnf("mon: connection to %s reset", c.curMonName)
	if err := c.reopenSession("connection reset"); err != nil {
		log.LogErrorf("mon: reopen after reset failed: %v", err)
	}
}

func (c *Client) handleMonMap(body []byte) {
	mm, err := proto.DecodeMonMap(body)
	if err != nil {
		log.LogWarnf("mon: decode monmap: %v", err)
		return
	}

	c.mu.Lock()
	if c.monmap == nil || mm.Epoch >= c.monmap.Epoch {
		c.monmap = mm
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	c.beginNegotiating(conn)
}

// beginNegotiating sends the AUTH request once a monmap is in hand,
// moving NEGOTIATING -> AUTHENTICATING.
func (c *Client) beginNegotiating(conn messenger.Connection) {
	handler, err := auth.New(auth.ProtoSharedSecret, c.cfg.Principal, c.cfg.Secret)
	if err != nil {
		c.latchAuthErr(err)
		return
	}
	handler.SetWantKeys(c.cfg.WantKeys)

	payload, err := handler.BuildRequest()
	if err != nil {
		c.latchAuthErr(cerrors.Wrap(cerrors.ErrAuthFatal, err, "mon: build auth request"))
		return
	}

	c.mu.Lock()
	c.authHandler = handler
	c.state = StateAuthenticating
	c.mu.Unlock()

	req := proto.NewAuthRequest(auth.SupportedProtocols(), c.cfg.Principal, 0, payload)
	msg := &proto.Message{Type: proto.MsgAuth, Body: req.Encode()}
	if err := conn.Send(context.Background(), msg); err != nil {
		c.latchAuthErr(cerrors.Wrap(cerrors.ErrTransient, err, "mon: send auth request"))
	}
}

func (c *Client) handleAuthReply(conn messenger.Connection, body []byte) {
	reply, err := proto.DecodeAuthReply(body)
	if err != nil {
		log.LogWarnf("mon: decode auth reply: %v", err)
		return
	}

	c.mu.Lock()
	handler := c.authHandler
	c.mu.Unlock()
	if handler == nil {
		return
	}

	if reply.Result != 0 {
		c.latchAuthErr(cerrors.New(cerrors.ErrAuthFatal, "mon: auth rejected"))
		return
	}
	if err := handler.HandleResponse(reply.Payload); err != nil {
		c.latchAuthErr(cerrors.Wrap(cerrors.ErrAuthFatal, err, "mon: auth response"))
		return
	}
	handler.SetGlobalID(reply.GlobalID)

	c.mu.Lock()
	c.globalID = reply.GlobalID
	c.state = StateHaveSession
	c.hunting = false
	c.authErr = nil
	subs := make([]string, 0, len(c.subs))
	for topic := range c.subs {
		subs = append(subs, topic)
	}
	pending := make([]uint64, 0, len(c.pending))
	for h := range c.pending {
		pending = append(pending, h)
	}
	c.mu.Unlock()
	c.cond.Broadcast()

	log.LogInfof("mon: session established with %s", c.curMonName)

	for _, topic := range subs {
		c.sendSubscribe(conn, topic)
	}
	c.resendPendingVersions(conn, pending)
}

func (c *Client) resendPendingVersions(conn messenger.Connection, handles []uint64) {
	for _, h := range handles {
		c.mu.Lock()
		req, ok := c.pending[h]
		c.mu.Unlock()
		if !ok {
			continue
		}
		msg := &proto.Message{Type: proto.MsgMonGetVersion, Body: (&proto.GetVersion{What: req.what, Handle: h}).Encode()}
		if err := conn.Send(context.Background(), msg); err != nil {
			c.failPending(h, cerrors.Wrap(cerrors.ErrTransient, err, "mon: resend get_version"))
		}
	}
}

func (c *Client) handleAuthRotatingReply(body []byte) {
	c.mu.Lock()
	handler := c.authHandler
	c.mu.Unlock()
	if handler == nil {
		return
	}
	if err := handler.HandleRotatingResponse(body); err != nil {
		log.LogWarnf("mon: rotating secrets response: %v", err)
		return
	}
	c.cond.Broadcast()
}

func (c *Client) handleSubscribeAck(body []byte) {
	ack, err := proto.DecodeSubscribeAck(body)
	if err != nil {
		log.LogWarnf("mon: decode subscribe ack: %v", err)
		return
	}

	c.mu.Lock()
	now := c.clk.Now()
	for topic, sub := range c.subs {
		// The ack names no topic, so it is applied to every sub that
		// has been sent at least once; a sub not sent yet (renewSent
		// zero) is skipped, as is one whose renewSent lies after now.
		if sub.renewSent.IsZero() || now.Before(sub.renewSent) {
			continue
		}
		sub.gotAck = true
		sub.renewAfter = time.Duration(ack.IntervalSeconds) * time.Second / 2
		if sub.onetime {
			delete(c.subs, topic)
		}
	}
	c.mu.Unlock()
}

func (c *Client) handleGetVersionReply(body []byte) {
	reply, err := proto.DecodeGetVersionReply(body)
	if err != nil {
		log.LogWarnf("mon: decode get_version reply: %v", err)
		return
	}

	c.mu.Lock()
	req, ok := c.pending[reply.Handle]
	if ok {
		delete(c.pending, reply.Handle)
	}
	c.mu.Unlock()
	if !ok {
		// Already failed by a reopen, or a duplicate/delayed reply; drop.
		return
	}
	req.onFinish(reply.Version, reply.OldestVersion, nil)
}

// handleKeepaliveAck measures the round-trip time from the most recent
// keepalive send (lastKeepaliveSent); the ack body is decoded only to
// validate it. sendKeepalive in tick.go issues a keepalive on every
// established tick without waiting for acks, so an ack for an older
// keepalive is measured against the newest send, and no per-request
// correlation state is kept.
func (c *Client) handleKeepaliveAck(body []byte) {
	if _, err := proto.DecodeKeepaliveAck(body); err != nil {
		log.LogWarnf("mon: decode keepalive ack: %v", err)
		return
	}

	c.mu.Lock()
	sentAt := c.lastKeepaliveSent
	hook := c.cfg.OnKeepaliveAck
	c.mu.Unlock()

	if !sentAt.IsZero() && hook != nil {
		hook(c.clk.Now().Sub(sentAt))
	}
}

func (c *Client) latchAuthErr(err error) {
	c.mu.Lock()
	c.authErr = err
	c.mu.Unlock()
	c.cond.Broadcast()
	log.LogErrorf("mon: auth error: %v", err)
}
