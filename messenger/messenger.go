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

// Package messenger declares the transport collaborator, out of scope
// here: the thing that actually owns a connection to one monitor and
// delivers Messages in both directions. mon depends only on this
// narrow surface, never on a concrete transport, so it can be driven by
// an in-memory fake in tests, the same shape as depending on an
// abstract connection interface rather than a raw net.Conn.
package messenger

import (
	"context"

	"github.com/chenggangschool/cephcore/proto"
)

// Connection is a single logical connection to one monitor.
type Connection interface {
	Send(ctx context.Context, msg *proto.Message) error
	RemoteName() string
}

// Dispatcher receives messages and reset notifications for connections
// a Messenger owns. Dispatch is invoked from an unspecified goroutine;
// implementations must not block it for long. mon's dispatcher handles
// each message inline on that goroutine.
type Dispatcher interface {
	Dispatch(conn Connection, msg *proto.Message)
	HandleReset(conn Connection)
}

// Messenger opens and tracks Connections to monitor addresses.
type Messenger interface {
	GetConnection(addr string) (Connection, error)
	MarkDown(conn Connection)
	SendKeepalive(conn Connection) error
}
