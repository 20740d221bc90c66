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

import (
	"errors"
	"fmt"
	"slices"

	"github.com/capidao/capiledger/escrow"
	"github.com/fxamacker/cbor/v2"
)

// StateRecordVersion is the current layout version of persisted state
// records. Fields are keyed by integer and only ever added, so older records
// decode with the new fields set to zero.
const StateRecordVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported state record version")

type investorRecord struct {
	_       struct{} `cbor:",toarray"`
	Address Address
	Account InvestorAccount
}

type ballotRecord struct {
	_     struct{} `cbor:",toarray"`
	Voter Address
	Vote  LocalVote
}

type slotRecord struct {
	RequestedAmount uint64         `cbor:"1,keyasint,omitempty"`
	VotesTotal      uint64         `cbor:"2,keyasint,omitempty"`
	Threshold       uint64         `cbor:"3,keyasint,omitempty"`
	Round           uint64         `cbor:"4,keyasint,omitempty"`
	RequestedAt     int64          `cbor:"5,keyasint,omitempty"`
	Ballots         []ballotRecord `cbor:"6,keyasint,omitempty"`
}

type stateRecord struct {
	Version   uint             `cbor:"1,keyasint"`
	ID        string           `cbor:"2,keyasint"`
	Seq       uint64           `cbor:"3,keyasint"`
	Dao       DaoAccount       `cbor:"4,keyasint"`
	Investors []investorRecord `cbor:"5,keyasint,omitempty"`
	Slots     []slotRecord     `cbor:"6,keyasint"`
	Escrow    []escrow.Entry   `cbor:"7,keyasint,omitempty"`
	UpdatedAt int64            `cbor:"8,keyasint,omitempty"`
}

var (
	stateEncMode cbor.EncMode
	stateDecMode cbor.DecMode
)

func init() {
	var err error
	stateEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encode mode: %s", err))
	}
	stateDecMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decode mode: %s", err))
	}
}

// EncodeState serializes state into its versioned record. Equal states always
// encode to identical bytes.
func EncodeState(state *LedgerState) ([]byte, error) {
	if state == nil {
		return nil, errors.New("nil state")
	}
	rec := stateRecord{
		Version:   StateRecordVersion,
		ID:        state.ID,
		Seq:       state.Seq,
		UpdatedAt: state.UpdatedAt,
		Dao:       state.Dao,
		Slots:     make([]slotRecord, len(state.Slots)),
		Escrow:    state.Escrow.Entries(),
	}
	for _, addr := range state.InvestorAddresses() {
		rec.Investors = append(rec.Investors, investorRecord{
			Address: addr,
			Account: state.Investors[addr],
		})
	}
	for i, slot := range state.Slots {
		sr := slotRecord{
			RequestedAmount: slot.RequestedAmount,
			VotesTotal:      slot.VotesTotal,
			Threshold:       slot.Threshold,
			Round:           slot.Round,
			RequestedAt:     slot.RequestedAt,
		}
		voters := make([]Address, 0, len(slot.LocalVotes))
		for voter := range slot.LocalVotes {
			voters = append(voters, voter)
		}
		slices.Sort(voters)
		for _, voter := range voters {
			sr.Ballots = append(sr.Ballots, ballotRecord{
				Voter: voter,
				Vote:  slot.LocalVotes[voter],
			})
		}
		rec.Slots[i] = sr
	}
	return stateEncMode.Marshal(rec)
}

// DecodeState parses a record produced by EncodeState
func DecodeState(data []byte) (*LedgerState, error) {
	var rec stateRecord
	if err := stateDecMode.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode state record: %w", err)
	}
	if rec.Version == 0 || rec.Version > StateRecordVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, rec.Version)
	}
	router, err := escrow.FromEntries(rec.Escrow)
	if err != nil {
		return nil, fmt.Errorf("decode state record escrow: %w", err)
	}
	ret := NewLedgerState(rec.ID, len(rec.Slots))
	ret.Seq = rec.Seq
	ret.UpdatedAt = rec.UpdatedAt
	ret.Dao = rec.Dao
	ret.Escrow = router
	for _, ir := range rec.Investors {
		ret.Investors[ir.Address] = ir.Account
	}
	for i, sr := range rec.Slots {
		slot := &ret.Slots[i]
		slot.RequestedAmount = sr.RequestedAmount
		slot.VotesTotal = sr.VotesTotal
		slot.Threshold = sr.Threshold
		slot.Round = sr.Round
		slot.RequestedAt = sr.RequestedAt
		for _, br := range sr.Ballots {
			slot.LocalVotes[br.Voter] = br.Vote
		}
	}
	return ret, nil
}
