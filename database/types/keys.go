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

package types

import (
	"bytes"
	"slices"
)

const (
	DaoStateKeyPrefix = "ds"
)

func DaoStateKey(daoID string) []byte {
	return slices.Concat([]byte(DaoStateKeyPrefix), []byte(daoID))
}

// DaoIDFromStateKey returns the DAO id encoded in a state key, or false if
// the key does not carry the state prefix
func DaoIDFromStateKey(key []byte) (string, bool) {
	if !bytes.HasPrefix(key, []byte(DaoStateKeyPrefix)) {
		return "", false
	}
	return string(key[len(DaoStateKeyPrefix):]), true
}
