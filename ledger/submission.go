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
	"bytes"
	"errors"
	"fmt"

	"github.com/capidao/capiledger/escrow"
	"gopkg.in/yaml.v3"
)

// Submission is the document form of a group as accepted by the CLI and the
// HTTP API. Only the fields used by Kind may be set. JSON documents are
// accepted as well since they are valid YAML. There is no time field; the
// engine stamps every group from its clock.
type Submission struct {
	Sender string `json:"sender" yaml:"sender"`
	Kind   string `json:"kind"   yaml:"kind"`

	Shares  uint64  `json:"shares,omitempty"  yaml:"shares,omitempty"`
	Payment uint64  `json:"payment,omitempty" yaml:"payment,omitempty"`
	Amount  uint64  `json:"amount,omitempty"  yaml:"amount,omitempty"`
	Slot    *uint32 `json:"slot,omitempty"    yaml:"slot,omitempty"`

	// setup-dao
	SharesAssetID     uint64  `json:"sharesAssetId,omitempty"     yaml:"sharesAssetId,omitempty"`
	FundsAssetID      uint64  `json:"fundsAssetId,omitempty"      yaml:"fundsAssetId,omitempty"`
	SharePrice        uint64  `json:"sharePrice,omitempty"        yaml:"sharePrice,omitempty"`
	InvestorsShareBP  uint64  `json:"investorsShareBp,omitempty"  yaml:"investorsShareBp,omitempty"`
	ShareSupply       uint64  `json:"shareSupply,omitempty"       yaml:"shareSupply,omitempty"`
	Target            uint64  `json:"target,omitempty"            yaml:"target,omitempty"`
	TargetEndDate     int64   `json:"targetEndDate,omitempty"     yaml:"targetEndDate,omitempty"`
	VoteThreshold     uint64  `json:"voteThreshold,omitempty"     yaml:"voteThreshold,omitempty"`
	CustomerEscrowRef *string `json:"customerEscrowRef,omitempty" yaml:"customerEscrowRef,omitempty"`

	// update-data
	Name        *string   `json:"name,omitempty"        yaml:"name,omitempty"`
	Description *string   `json:"description,omitempty" yaml:"description,omitempty"`
	URLs        *[]string `json:"urls,omitempty"        yaml:"urls,omitempty"`
	Owner       *string   `json:"owner,omitempty"       yaml:"owner,omitempty"`
}

// ParseSubmission decodes a single YAML or JSON submission document. Unknown
// fields are an error.
func ParseSubmission(data []byte) (*Submission, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var ret Submission
	if err := dec.Decode(&ret); err != nil {
		return nil, fmt.Errorf("decode submission: %w", err)
	}
	return &ret, nil
}

// Group converts the submission into a group. The operation parameters are
// not validated here beyond the presence of a slot index.
func (s *Submission) Group() (Group, error) {
	if s.Kind == "" {
		return Group{}, reject(ErrUnknownOperation, "missing kind")
	}
	kind, err := ParseOperationKind(s.Kind)
	if err != nil {
		return Group{}, err
	}
	ret := Group{Sender: Address(s.Sender)}
	switch kind {
	case OpCreateDao:
		ret.Op = CreateDao{}
	case OpSetupDao:
		op := SetupDao{
			SharesAssetID:    escrow.AssetID(s.SharesAssetID),
			FundsAssetID:     escrow.AssetID(s.FundsAssetID),
			SharePrice:       s.SharePrice,
			InvestorsShareBP: s.InvestorsShareBP,
			ShareSupply:      s.ShareSupply,
			Target:           s.Target,
			TargetEndDate:    s.TargetEndDate,
			VoteThreshold:    s.VoteThreshold,
		}
		if s.CustomerEscrowRef != nil {
			op.CustomerEscrowRef = *s.CustomerEscrowRef
		}
		ret.Op = op
	case OpOptIn:
		ret.Op = OptIn{}
	case OpInvest:
		ret.Op = Invest{Shares: s.Shares, Payment: s.Payment}
	case OpLock:
		ret.Op = Lock{Shares: s.Shares}
	case OpClaim:
		ret.Op = Claim{Amount: s.Amount}
	case OpUnlock:
		ret.Op = Unlock{}
	case OpPayRevenue:
		ret.Op = PayRevenue{Amount: s.Amount}
	case OpDrain:
		ret.Op = Drain{}
	case OpWithdraw:
		ret.Op = Withdraw{Amount: s.Amount}
	case OpInitRequest, OpVote, OpCancelRequest, OpExecuteWithdrawal:
		if s.Slot == nil {
			return Group{}, reject(
				ErrInvalidParameter,
				"%s requires a slot",
				kind,
			)
		}
		switch kind {
		case OpInitRequest:
			ret.Op = InitRequest{Slot: *s.Slot, Amount: s.Amount}
		case OpVote:
			ret.Op = Vote{Slot: *s.Slot}
		case OpCancelRequest:
			ret.Op = CancelRequest{Slot: *s.Slot}
		default:
			ret.Op = ExecuteWithdrawal{Slot: *s.Slot}
		}
	case OpReclaim:
		ret.Op = Reclaim{}
	case OpUpdateData:
		op := UpdateData{
			Name:              s.Name,
			Description:       s.Description,
			URLs:              s.URLs,
			CustomerEscrowRef: s.CustomerEscrowRef,
		}
		if s.Owner != nil {
			owner := Address(*s.Owner)
			op.Owner = &owner
		}
		ret.Op = op
	default:
		return Group{}, errors.New("unhandled operation kind")
	}
	return ret, nil
}
