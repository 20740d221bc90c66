// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ledger

import "github.com/capidao/capiledger/event"

const (
	OperationAppliedEventType  event.EventType = "ledger.operation.applied"
	OperationRejectedEventType event.EventType = "ledger.operation.rejected"
)

// OperationAppliedEvent is published after an applied group has been
// persisted
type OperationAppliedEvent struct {
	DaoID  string  `json:"daoId"`
	Kind   string  `json:"kind"`
	Sender Address `json:"sender"`
	Seq    uint64  `json:"seq"`
	Amount uint64  `json:"amount"`
	Time   int64   `json:"time"`
}

// OperationRejectedEvent is published for every rejected group. Seq is the
// sequence number of the state the group was evaluated against.
type OperationRejectedEvent struct {
	DaoID         string  `json:"daoId"`
	Kind          string  `json:"kind"`
	Sender        Address `json:"sender"`
	Reason        string  `json:"reason"`
	RejectionKind string  `json:"rejectionKind"`
	Detail        string  `json:"detail"`
	Seq           uint64  `json:"seq"`
	Amount        uint64  `json:"amount"`
	Time          int64   `json:"time"`
	Fatal         bool    `json:"fatal"`
}
