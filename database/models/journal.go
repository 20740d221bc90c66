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


package models

import (
	"time"

	"github.com/capidao/capiledger/database/types"
)

const (
	JournalOutcomeApplied  = "applied"
	JournalOutcomeRejected = "rejected"
)

// JournalEntry records one submitted operation group and its outcome.
// Rejected groups are journaled with the sequence number they were
// evaluated against.
type JournalEntry struct {
	CreatedAt     time.Time
	DaoID         string `gorm:"index:idx_journal_dao_seq;size:128;not null"`
	Kind          string `gorm:"size:32;not null"`
	Sender        string `gorm:"size:128"`
	Outcome       string `gorm:"size:16;not null"`
	Reason        string
	RejectionKind string `gorm:"size:32"`
	ID            uint   `gorm:"primarykey"`
	Seq           uint64 `gorm:"index:idx_journal_dao_seq;not null"`
	Amount        types.Uint64
	Time          int64
}

func (JournalEntry) TableName() string {
	return "journal"
}
