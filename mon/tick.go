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

	"github.com/chenggangschool/cephcore/auth"
	"github.com/chenggangschool/cephcore/messenger"
	"github.com/chenggangschool/cephcore/proto"
	"github.com/chenggangschool/cephcore/util/log"
)

// tick runs on every tickInterval() and fans out to the handful of
// periodic duties the monitor session owns:
// hunting when there is no live connection, renewing subscriptions that
// are due, probing rotating secrets, pinging the monitor, and flushing
// queued client log lines. Each duty is independent of the others, so a
// failure in one (a send error, say) never blocks the rest.
func (c *Client) tick() {
	c.mu.Lock()
	shutdown := c.shutdown
	hunting := c.hunting
	conn := c.conn
	ready := c.state == StateHaveSession
	c.mu.Unlock()
	if shutdown {
		return
	}

	if hunting || conn == nil {
		if err := c.reopenSession("tick: no live connection"); err != nil {
			log.LogWarnf("mon: tick reopen failed: %v", err)
		}
		return
	}

	if !ready {
		return
	}

	c.renewDueSubs(conn)
	c.checkAuthTickets(conn)
	c.checkAuthRotating(conn)
	c.sendKeepalive(conn)
	c.flushLogs()
}

// checkAuthTickets requests a fresh service ticket when the active
// handler reports it's missing or expiring, independent of the
// rotating-secrets check run by checkAuthRotating.
// It reuses the AUTH/AUTH_REPLY exchange rather than a separate message
// type, since handleAuthReply already knows how to apply a reply while
// a session is established.
func (c *Client) checkAuthTickets(conn messenger.Connection) {
	c.mu.Lock()
	handler := c.authHandler
	globalID := c.globalID
	c.mu.Unlock()
	if handler == nil || !handler.NeedTickets() {
		return
	}

	payload, err := handler.BuildRequest()
	if err != nil {
		log.LogWarnf("mon: build ticket request: %v", err)
		return
	}
	req := proto.NewAuthRequest(auth.SupportedProtocols(), c.cfg.Principal, globalID, payload)
	msg := &proto.Message{Type: proto.MsgAuth, Body: req.Encode()}
	if err := conn.Send(context.Background(), msg); err != nil {
		log.LogWarnf("mon: send ticket request: %v", err)
	}
}

// renewDueSubs sends every subscription not sent yet, and resends an
// acked one once its granted interval (renewAfter) has elapsed since its
// last send. A sub that was sent but never acked is not resent here. An
// acked onetime sub has already been removed from c.subs by
// handleSubscribeAck, so it never reaches this loop again.
func (c *Client) renewDueSubs(conn messenger.Connection) {
	c.mu.Lock()
	now := c.clk.Now()
	var due []string
	for topic, sub := range c.subs {
		if sub.renewSent.IsZero() {
			due = append(due, topic)
			continue
		}
		if !sub.gotAck {
			continue
		}
		if sub.renewAfter <= 0 {
			continue
		}
		if now.Sub(sub.renewSent) >= sub.renewAfter {
			due = append(due, topic)
		}
	}
	c.mu.Unlock()

	for _, topic := range due {
		c.sendSubscribe(conn, topic)
	}
}

// checkAuthRotating requests fresh rotating secrets once the active
// handler reports its secrets will expire within the next tick's reach,
// rather than waiting for a caller to notice via WaitAuthRotating.
func (c *Client) checkAuthRotating(conn messenger.Connection) {
	c.mu.Lock()
	handler := c.authHandler
	c.mu.Unlock()
	if handler == nil {
		return
	}

	horizon := c.clk.Now().Add(c.tickInterval())
	if !handler.NeedNewSecrets(horizon) {
		return
	}

	payload, err := handler.BuildRotatingRequest()
	if err != nil {
		log.LogWarnf("mon: build rotating secrets request: %v", err)
		return
	}
	msg := &proto.Message{Type: proto.MsgAuthRotatingRequest, Body: payload}
	if err := conn.Send(context.Background(), msg); err != nil {
		log.LogWarnf("mon: send rotating secrets request: %v", err)
	}
}

// sendKeepalive sends a keepalive on every tick that the session is
// established, without waiting for the previous one's ack, and
// handleKeepaliveAck measures the
// round-trip against the most recent send, so a slow or dropped ack
// simply gets overwritten by the next tick's timestamp rather than
// accumulating unbounded per-request state.
func (c *Client) sendKeepalive(conn messenger.Connection) {
	if err := c.msgr.SendKeepalive(conn); err != nil {
		log.LogWarnf("mon: send keepalive: %v", err)
		return
	}
	c.mu.Lock()
	c.lastKeepaliveSent = c.clk.Now()
	c.mu.Unlock()
}
