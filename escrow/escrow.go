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

// Package escrow models the fixed-role accounts that ledger funds and shares
// are routed between. Accounts are addressable balances, not wallets: a
// transfer only moves numbers between keys and never performs I/O.
package escrow

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/capidao/capiledger/fixedpoint"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAccount      = errors.New("invalid account")
)

// AssetID identifies a fungible token
type AssetID uint64

type Role uint8

const (
	RoleUnknown     Role = 0
	RoleCentral     Role = 1 // dividend and capital pool
	RoleCustomer    Role = 2 // revenue paid by customers, waiting to be drained
	RolePlatformFee Role = 3
	RoleHolding     Role = 4 // minted shares not yet sold
	RoleLocked      Role = 5 // shares locked by investors
	RoleParty       Role = 6 // an external party identified by Key
)

func (r Role) String() string {
	switch r {
	case RoleCentral:
		return "central"
	case RoleCustomer:
		return "customer"
	case RolePlatformFee:
		return "platform-fee"
	case RoleHolding:
		return "holding"
	case RoleLocked:
		return "locked"
	case RoleParty:
		return "party"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(r))
	}
}

// Account addresses a balance holder. Key is only set for RoleParty.
type Account struct {
	_    struct{} `cbor:",toarray"`
	Role Role
	Key  string
}

func Central() Account     { return Account{Role: RoleCentral} }
func Customer() Account    { return Account{Role: RoleCustomer} }
func PlatformFee() Account { return Account{Role: RolePlatformFee} }
func Holding() Account     { return Account{Role: RoleHolding} }
func Locked() Account      { return Account{Role: RoleLocked} }

// Party returns the account of an external party, such as an investor or the
// DAO owner
func Party(key string) Account {
	return Account{Role: RoleParty, Key: key}
}

func (a Account) String() string {
	if a.Role == RoleParty {
		return "party:" + a.Key
	}
	return a.Role.String()
}

func (a Account) validate() error {
	switch a.Role {
	case RoleCentral, RoleCustomer, RolePlatformFee, RoleHolding, RoleLocked:
		if a.Key != "" {
			return fmt.Errorf("%w: role %s does not take a key", ErrInvalidAccount, a.Role)
		}
		return nil
	case RoleParty:
		if a.Key == "" {
			return fmt.Errorf("%w: party account without key", ErrInvalidAccount)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidAccount, a.Role)
	}
}

type balanceKey struct {
	account Account
	asset   AssetID
}

// Entry is a single non-zero balance
type Entry struct {
	_       struct{} `cbor:",toarray"`
	Account Account
	Asset   AssetID
	Amount  uint64
}

// Router holds per-asset balances for every account. The zero value is not
// usable; create one with New.
type Router struct {
	balances map[balanceKey]uint64
}

func New() *Router {
	return &Router{
		balances: make(map[balanceKey]uint64),
	}
}

// FromEntries rebuilds a router from a list of balances
func FromEntries(entries []Entry) (*Router, error) {
	r := New()
	for _, e := range entries {
		if err := r.Deposit(e.Account, e.Asset, e.Amount); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Balance returns the current balance of account in asset
func (r *Router) Balance(account Account, asset AssetID) uint64 {
	return r.balances[balanceKey{account: account, asset: asset}]
}

// Deposit credits funds entering the ledger from outside
func (r *Router) Deposit(account Account, asset AssetID, amount uint64) error {
	if err := account.validate(); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	key := balanceKey{account: account, asset: asset}
	newBal, err := fixedpoint.Add(r.balances[key], amount)
	if err != nil {
		return fmt.Errorf("deposit to %s: %w", account, err)
	}
	r.balances[key] = newBal
	return nil
}

// Transfer moves amount of asset from one account to another
func (r *Router) Transfer(from, to Account, asset AssetID, amount uint64) error {
	if err := from.validate(); err != nil {
		return err
	}
	if err := to.validate(); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	fromKey := balanceKey{account: from, asset: asset}
	toKey := balanceKey{account: to, asset: asset}
	fromBal := r.balances[fromKey]
	if fromBal < amount {
		return fmt.Errorf(
			"%w: %s holds %d of asset %d, needs %d",
			ErrInsufficientBalance,
			from,
			fromBal,
			asset,
			amount,
		)
	}
	if from == to {
		return nil
	}
	toBal, err := fixedpoint.Add(r.balances[toKey], amount)
	if err != nil {
		return fmt.Errorf("transfer to %s: %w", to, err)
	}
	r.setBalance(fromKey, fromBal-amount)
	r.balances[toKey] = toBal
	return nil
}

func (r *Router) setBalance(key balanceKey, amount uint64) {
	if amount == 0 {
		delete(r.balances, key)
		return
	}
	r.balances[key] = amount
}

// Total returns the sum of all balances of asset
func (r *Router) Total(asset AssetID) (uint64, error) {
	var total uint64
	var err error
	for key, amount := range r.balances {
		if key.asset != asset {
			continue
		}
		total, err = fixedpoint.Add(total, amount)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Clone returns an independent copy of the router
func (r *Router) Clone() *Router {
	return &Router{
		balances: maps.Clone(r.balances),
	}
}

// Entries returns all non-zero balances in a stable order
func (r *Router) Entries() []Entry {
	ret := make([]Entry, 0, len(r.balances))
	for key, amount := range r.balances {
		ret = append(ret, Entry{
			Account: key.account,
			Asset:   key.asset,
			Amount:  amount,
		})
	}
	slices.SortFunc(ret, compareEntries)
	return ret
}

func compareEntries(a, b Entry) int {
	return cmp.Or(
		cmp.Compare(a.Account.Role, b.Account.Role),
		cmp.Compare(a.Account.Key, b.Account.Key),
		cmp.Compare(a.Asset, b.Asset),
	)
}
