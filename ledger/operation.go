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
	"fmt"
	"strings"

	"github.com/capidao/capiledger/escrow"
)

type OperationKind uint8

const (
	OpCreateDao OperationKind = iota + 1
	OpSetupDao
	OpOptIn
	OpInvest
	OpLock
	OpClaim
	OpUnlock
	OpPayRevenue
	OpDrain
	OpWithdraw
	OpInitRequest
	OpVote
	OpCancelRequest
	OpExecuteWithdrawal
	OpReclaim
	OpUpdateData
)

var operationKindNames = map[OperationKind]string{
	OpCreateDao:         "create-dao",
	OpSetupDao:          "setup-dao",
	OpOptIn:             "opt-in",
	OpInvest:            "invest",
	OpLock:              "lock",
	OpClaim:             "claim",
	OpUnlock:            "unlock",
	OpPayRevenue:        "pay-revenue",
	OpDrain:             "drain",
	OpWithdraw:          "withdraw",
	OpInitRequest:       "init-request",
	OpVote:              "vote",
	OpCancelRequest:     "cancel-request",
	OpExecuteWithdrawal: "execute-withdrawal",
	OpReclaim:           "reclaim",
	OpUpdateData:        "update-data",
}

func (k OperationKind) String() string {
	if name, ok := operationKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(k))
}

// ParseOperationKind accepts the kebab-case name of an operation kind. Case
// and the separator are not significant, so "ExecuteWithdrawal" and
// "execute_withdrawal" also match.
func ParseOperationKind(name string) (OperationKind, error) {
	norm := strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(name))
	for kind, kindName := range operationKindNames {
		if strings.ReplaceAll(kindName, "-", "") == norm {
			return kind, nil
		}
	}
	return 0, reject(ErrUnknownOperation, "%q", name)
}

// Operation is one atomic group. Each variant carries every amount its
// sub-transfers need, so a group is applied completely or not at all.
type Operation interface {
	Kind() OperationKind
}

// CreateDao allocates a zeroed DAO owned by the sender. ID, PlatformFeeBP and
// Slots are filled in by the host.
type CreateDao struct {
	ID            string
	PlatformFeeBP uint64
	Slots         uint32
}

// SetupDao sets the immutable economic parameters and mints the share supply
// into the holding pool. It can only happen once.
type SetupDao struct {
	SharesAssetID     escrow.AssetID
	FundsAssetID      escrow.AssetID
	SharePrice        uint64
	InvestorsShareBP  uint64
	ShareSupply       uint64
	Target            uint64
	TargetEndDate     int64
	VoteThreshold     uint64
	CustomerEscrowRef string
}

type OptIn struct{}

// Invest buys shares from the holding pool during the raise and locks them
type Invest struct {
	Shares  uint64
	Payment uint64
}

// Lock locks shares the sender already holds
type Lock struct {
	Shares uint64
}

// Claim pays out part of the sender's dividend entitlement
type Claim struct {
	Amount uint64
}

type Unlock struct{}

// PayRevenue records a customer payment into the customer escrow
type PayRevenue struct {
	Amount uint64
}

// Drain moves the customer escrow into the central pool net of the platform
// fee
type Drain struct{}

// Withdraw pays accumulated funds from the central pool to the owner after a
// successful raise
type Withdraw struct {
	Amount uint64
}

type InitRequest struct {
	Slot   uint32
	Amount uint64
}

type Vote struct {
	Slot uint32
}

type CancelRequest struct {
	Slot uint32
}

type ExecuteWithdrawal struct {
	Slot uint32
}

// Reclaim refunds an investor's paid-in funds after a failed raise
type Reclaim struct{}

// UpdateData changes mutable metadata. Nil fields are left unchanged.
type UpdateData struct {
	Name              *string
	Description       *string
	URLs              *[]string
	CustomerEscrowRef *string
	Owner             *Address
}

func (CreateDao) Kind() OperationKind         { return OpCreateDao }
func (SetupDao) Kind() OperationKind          { return OpSetupDao }
func (OptIn) Kind() OperationKind             { return OpOptIn }
func (Invest) Kind() OperationKind            { return OpInvest }
func (Lock) Kind() OperationKind              { return OpLock }
func (Claim) Kind() OperationKind             { return OpClaim }
func (Unlock) Kind() OperationKind            { return OpUnlock }
func (PayRevenue) Kind() OperationKind        { return OpPayRevenue }
func (Drain) Kind() OperationKind             { return OpDrain }
func (Withdraw) Kind() OperationKind          { return OpWithdraw }
func (InitRequest) Kind() OperationKind       { return OpInitRequest }
func (Vote) Kind() OperationKind              { return OpVote }
func (CancelRequest) Kind() OperationKind     { return OpCancelRequest }
func (ExecuteWithdrawal) Kind() OperationKind { return OpExecuteWithdrawal }
func (Reclaim) Kind() OperationKind           { return OpReclaim }
func (UpdateData) Kind() OperationKind        { return OpUpdateData }

// Group is a candidate atomic group as delivered by the sequencer
type Group struct {
	Sender Address
	// Time is the ledger time in unix seconds at which the group executes
	Time int64
	Op   Operation
}

// Amount returns the primary amount carried by the operation, for journaling
func Amount(op Operation) uint64 {
	switch o := op.(type) {
	case Invest:
		return o.Payment
	case Lock:
		return o.Shares
	case Claim:
		return o.Amount
	case PayRevenue:
		return o.Amount
	case Withdraw:
		return o.Amount
	case InitRequest:
		return o.Amount
	case SetupDao:
		return o.ShareSupply
	default:
		return 0
	}
}
