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

package auth

import "time"

// noneHandler is ProtoNone: no challenge, no rotating secrets, useful
// for talking to a cluster that hasn't enabled authentication.
type noneHandler struct{}

func newNoneHandler() *noneHandler { return &noneHandler{} }

func (h *noneHandler) Protocol() Protocol       { return ProtoNone }
func (h *noneHandler) NeedTickets() bool        { return false }
func (h *noneHandler) SetWantKeys(KeySet)       {}
func (h *noneHandler) SetGlobalID(uint64)       {}
func (h *noneHandler) Reset()                   {}

func (h *noneHandler) BuildRequest() ([]byte, error) { return nil, nil }
func (h *noneHandler) HandleResponse([]byte) error   { return nil }

func (h *noneHandler) BuildRotatingRequest() ([]byte, error) { return nil, nil }
func (h *noneHandler) HandleRotatingResponse([]byte) error   { return nil }
func (h *noneHandler) NeedNewSecrets(time.Time) bool         { return false }
