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

// Package mon implements the monitor session: hunting for a reachable
// monitor, negotiating and maintaining auth, subscribing to topics, and
// serving get_version requests, all behind one lock with a condition
// variable for the handful of calls that are allowed to block the
// caller. One mutex guards all mutable state, with narrow critical
// sections and the real work (encoding, sending) done outside the lock.
package mon

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/chenggangschool/cephcore/auth"
	cerrors "github.com/chenggangschool/cephcore/util/errors"
	"github.com/chenggangschool/cephcore/util/log"
	"github.com/chenggangschool/cephcore/messenger"
	"github.com/chenggangschool/cephcore/proto"
)

// SessionState is the monitor session's state machine.
type SessionState int

const (
	StateNone SessionState = iota
	StateNegotiating
	StateAuthenticating
	StateHaveSession
)

func (s SessionState) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateNegotiating:
		return "negotiating"
	case StateAuthenticating:
		return "authenticating"
	case StateHaveSession:
		return "have_session"
	default:
		return "unknown"
	}
}

// Config configures a Client. HuntInterval/PingInterval are the two tick
// cadences, read from the mon_client_hunt_interval and
// mon_client_ping_interval config keys.
type Config struct {
	HuntInterval time.Duration
	PingInterval time.Duration
	Principal    proto.EntityName
	Secret       []byte
	WantKeys     auth.KeySet

	// OnKeepaliveAck, if set, is invoked with the measured round-trip
	// time whenever a keepalive ack arrives.
	OnKeepaliveAck func(rtt time.Duration)
}

type subState struct {
	start      uint64
	flags      uint8
	onetime    bool
	renewSent  time.Time
	gotAck     bool
	renewAfter time.Duration
}

type versionReq struct {
	what     string
	onFinish func(version, oldest uint64, err error)
}

// Client is the monitor session core. The zero value is not usable;
// construct with NewClient.
type Client struct {
	mu   sync.Mutex
	cond *sync.Cond
	clk  clock.Clock
	msgr messenger.Messenger
	cfg  Config

	monmap     *proto.MonMap
	state      SessionState
	hunting    bool
	curMonName string
	conn       messenger.Connection
	authHandler auth.Handler
	globalID    uint64

	subs map[string]*subState

	nextHandle uint64
	pending    map[uint64]*versionReq

	pendingLogs []string

	lastKeepaliveSent time.Time

	shutdown bool
	stopTick chan struct{}

	authErr error
}

// NewClient builds a Client. clk may be clock.New() in production or
// clock.NewMock() in tests.
func NewClient(cfg Config, msgr messenger.Messenger, clk clock.Clock) *Client {
	c := &Client{
		clk:     clk,
		msgr:    msgr,
		cfg:     cfg,
		subs:    make(map[string]*subState),
		pending: make(map[uint64]*versionReq),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// BuildInitialMonMap seeds the client's monitor roster from static
// configuration, before any real MonMap has ever been fetched. This is
// the bootstrap path usually called build_initial_monmap.
func (c *Client) BuildInitialMonMap(mons []proto.MonInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.monmap = &proto.MonMap{Mons: mons}
}

// MonMap returns the current monitor roster.
func (c *Client) MonMap() *proto.MonMap {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.monmap
}

// State returns the current session state.
func (c *Client) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins hunting for a monitor and launches the periodic tick
// loop. It does not block; use Authenticate to wait for a session.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return cerrors.New(cerrors.ErrShutdown, "mon: client shut down")
	}
	c.stopTick = make(chan struct{})
	c.mu.Unlock()

	if err := c.reopenSession("start"); err != nil {
		return err
	}

	go c.tickLoop(ctx)
	return nil
}

func (c *Client) tickLoop(ctx context.Context) {
	interval := c.tickInterval()
	ticker := c.clk.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopTick:
			return
		case <-ticker.C:
			c.tick()
			if next := c.tickInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// tickInterval returns hunt_interval while hunting for a monitor and
// ping_interval once a session is established, per the state's tick
// cadence. tickLoop re-arms its ticker whenever this changes.
func (c *Client) tickInterval() time.Duration {
	c.mu.Lock()
	hunting := c.hunting
	c.mu.Unlock()
	hi, pi := c.cfg.HuntInterval, c.cfg.PingInterval
	if hi <= 0 {
		hi = 3 * time.Second
	}
	if pi <= 0 {
		pi = 10 * time.Second
	}
	if hunting {
		return hi
	}
	return pi
}

// pickRandomMon returns the name of a random monitor other than
// excludeName, an exclude-by-rank hunting trick so a reopen never
// immediately retries the monitor that just failed when another
// candidate exists.
func (c *Client) pickRandomMon(excludeName string) (string, bool) {
	if c.monmap == nil || c.monmap.Size() == 0 {
		return "", false
	}
	n := c.monmap.Size()
	if n == 1 {
		return c.monmap.NameByRank(0), true
	}
	start := rand.Intn(n)
	for i := 0; i < n; i++ {
		name := c.monmap.NameByRank((start + i) % n)
		if name != excludeName {
			return name, true
		}
	}
	return c.monmap.NameByRank(start), true
}

// reopenSession closes any current connection, picks a new monitor, and
// begins a fresh NEGOTIATING handshake. This is a synchronous
// boundary: every pending get_version request is failed
// with ErrAgain rather than left to straddle the old and new sessions.
func (c *Client) reopenSession(reason string) error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return cerrors.New(cerrors.ErrShutdown, "mon: client shut down")
	}

	oldConn := c.conn
	excludeName := c.curMonName

	name, ok := c.pickRandomMon(excludeName)
	if !ok {
		c.mu.Unlock()
		return cerrors.New(cerrors.ErrNoValidMonitor, "mon: no monitors configured")
	}
	addr, _ := c.monmap.InstByName(name)

	failed := c.pending
	c.pending = make(map[uint64]*versionReq)
	c.subs = make(map[string]*subState)
	c.state = StateNegotiating
	c.hunting = true
	c.curMonName = name
	c.authHandler = nil
	c.mu.Unlock()

	if oldConn != nil {
		c.msgr.MarkDown(oldConn)
	}
	for _, req := range failed {
		req.onFinish(0, 0, cerrors.New(cerrors.ErrAgain, "mon: session reopened, retry"))
	}

	log.LogInfof("mon: reopening session to %s (%s): %s", name, addr, reason)

	conn, err := c.msgr.GetConnection(addr)
	if err != nil {
		return cerrors.Wrap(cerrors.ErrTransient, err, "mon: GetConnection")
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	req := &proto.Message{Type: proto.MsgMonGetMap}
	return conn.Send(context.Background(), req)
}

// Authenticate blocks the caller until the session reaches HAVE_SESSION,
// ctx is cancelled, or timeout elapses; one of the few calls allowed
// to block.
func (c *Client) Authenticate(ctx context.Context, timeout time.Duration) error {
	deadline := c.clk.Now().Add(timeout)
	c.mu.Lock()
	defer c.mu.Unlock()

	for c.state != StateHaveSession {
		if c.shutdown {
			return cerrors.New(cerrors.ErrShutdown, "mon: client shut down")
		}
		if c.authErr != nil {
			return c.authErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if timeout > 0 && !c.clk.Now().Before(deadline) {
			return cerrors.New(cerrors.ErrTimeout, "mon: authenticate timed out")
		}
		c.waitWithDeadline(ctx, deadline)
	}
	return nil
}

// WaitAuthRotating blocks until the active auth handler reports it does
// not need fresh rotating secrets for at least the rest of timeout, ctx
// is cancelled, or timeout elapses.
func (c *Client) WaitAuthRotating(ctx context.Context, timeout time.Duration) error {
	deadline := c.clk.Now().Add(timeout)
	c.mu.Lock()
	defer c.mu.Unlock()

	for {
		if c.shutdown {
			return cerrors.New(cerrors.ErrShutdown, "mon: client shut down")
		}
		if c.authHandler != nil && !c.authHandler.NeedNewSecrets(c.clk.Now().Add(timeout)) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if timeout > 0 && !c.clk.Now().Before(deadline) {
			return cerrors.New(cerrors.ErrTimeout, "mon: wait_auth_rotating timed out")
		}
		c.waitWithDeadline(ctx, deadline)
	}
}

// waitWithDeadline must be called with c.mu held. It blocks on c.cond,
// which releases the lock while waiting and reacquires it before
// returning, until something calls Broadcast, either state changing,
// the deadline firing, or ctx being cancelled, whichever comes first.
func (c *Client) waitWithDeadline(ctx context.Context, deadline time.Time) {
	stop := make(chan struct{})
	var timer *clock.Timer
	if !deadline.IsZero() {
		if d := deadline.Sub(c.clk.Now()); d > 0 {
			timer = c.clk.AfterFunc(d, func() { c.cond.Broadcast() })
		}
	}
	go func() {
		select {
		case <-ctx.Done():
			c.cond.Broadcast()
		case <-stop:
		}
	}()
	c.cond.Wait()
	close(stop)
	if timer != nil {
		timer.Stop()
	}
}

// GetVersion asynchronously requests the latest committed version of
// what (e.g. "osdmap", "mdsmap"); onFinish runs exactly once, on the
// goroutine that completes the request: the one delivering the reply to
// Dispatch, or the one that fails it (for instance reopenSession or
// Shutdown). There is no separate finisher goroutine, so a slow onFinish
// delays that caller. The returned handle is a monotonically increasing
// counter, deliberately not derived from the
// xid correlation IDs used elsewhere in this module, since xid order is
// time-based rather than a strict counter.
func (c *Client) GetVersion(what string, onFinish func(version, oldest uint64, err error)) uint64 {
	c.mu.Lock()
	c.nextHandle++
	handle := c.nextHandle
	c.pending[handle] = &versionReq{what: what, onFinish: onFinish}
	conn := c.conn
	ready := c.state == StateHaveSession
	c.mu.Unlock()

	if !ready || conn == nil {
		// Queued; will be sent once HAVE_SESSION is reached by a future
		// reopen/subscribe cycle's resend, or failed by reopenSession.
		return handle
	}

	msg := &proto.Message{Type: proto.MsgMonGetVersion, Body: (&proto.GetVersion{What: what, Handle: handle}).Encode()}
	if err := conn.Send(context.Background(), msg); err != nil {
		c.failPending(handle, cerrors.Wrap(cerrors.ErrTransient, err, "mon: send get_version"))
	}
	return handle
}

func (c *Client) failPending(handle uint64, err error) {
	c.mu.Lock()
	req, ok := c.pending[handle]
	if ok {
		delete(c.pending, handle)
	}
	c.mu.Unlock()
	if ok {
		req.onFinish(0, 0, err)
	}
}

// Subscribe registers interest in topic starting at start. onetime
// subscriptions are dropped from the renewal set once acked.
func (c *Client) Subscribe(topic string, start uint64, onetime bool) {
	var flags uint8
	if onetime {
		flags = proto.SubOnetimeFlag
	}
	c.mu.Lock()
	c.subs[topic] = &subState{start: start, flags: flags, onetime: onetime}
	conn := c.conn
	ready := c.state == StateHaveSession
	c.mu.Unlock()

	if ready && conn != nil {
		c.sendSubscribe(conn, topic)
	}
}

func (c *Client) sendSubscribe(conn messenger.Connection, topic string) {
	c.mu.Lock()
	sub, ok := c.subs[topic]
	if !ok {
		c.mu.Unlock()
		return
	}
	sub.renewSent = c.clk.Now()
	body := &proto.Subscribe{Topics: map[string]proto.SubItem{topic: {Start: sub.start, Flags: sub.flags}}}
	c.mu.Unlock()

	msg := &proto.Message{Type: proto.MsgMonSubscribe, Body: body.Encode()}
	if err := conn.Send(context.Background(), msg); err != nil {
		log.LogWarnf("mon: send subscribe %s: %v", topic, err)
	}
}

// SendLog queues a client log line to be flushed to the monitor on the
// next tick, opportunistically rather than synchronously.
func (c *Client) SendLog(line string) {
	c.mu.Lock()
	c.pendingLogs = append(c.pendingLogs, line)
	c.mu.Unlock()
}

func (c *Client) flushLogs() {
	c.mu.Lock()
	if len(c.pendingLogs) == 0 {
		c.mu.Unlock()
		return
	}
	lines := c.pendingLogs
	c.pendingLogs = nil
	conn := c.conn
	ready := c.state == StateHaveSession
	c.mu.Unlock()

	if !ready || conn == nil {
		c.mu.Lock()
		c.pendingLogs = append(lines, c.pendingLogs...)
		c.mu.Unlock()
		return
	}
	msg := &proto.Message{Type: proto.MsgLog, Body: (&proto.LogBatch{Lines: lines}).Encode()}
	if err := conn.Send(context.Background(), msg); err != nil {
		log.LogWarnf("mon: flush logs: %v", err)
	}
}

// Shutdown tears the client down; blocked Authenticate/WaitAuthRotating
// calls return ErrShutdown and the tick loop stops.
func (c *Client) Shutdown() {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}
	c.shutdown = true
	c.state = StateNone
	conn := c.conn
	stop := c.stopTick
	failed := c.pending
	c.pending = make(map[uint64]*versionReq)
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if conn != nil {
		c.msgr.MarkDown(conn)
	}
	for _, req := range failed {
		req.onFinish(0, 0, cerrors.New(cerrors.ErrShutdown, "mon: client shut down"))
	}
	c.cond.Broadcast()
}
