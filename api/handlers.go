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


package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/capidao/capiledger/database"
	"github.com/capidao/capiledger/ledger"
	"github.com/gorilla/mux"
)

// Submission bodies are small documents
const maxSubmissionSize = 64 * 1024

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errStr string, message string) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      errStr,
		Message:    message,
	})
}

// writeLedgerError maps an engine error to a response. Rejections carry
// their reason and kind.
func (a *API) writeLedgerError(w http.ResponseWriter, err error) {
	var rejErr *ledger.RejectionError
	switch {
	case errors.Is(err, database.ErrDaoNotFound),
		errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not Found", err.Error())
		return
	case errors.As(err, &rejErr):
		status := http.StatusConflict
		errStr := "Conflict"
		switch rejErr.Kind {
		case ledger.KindAuthorization:
			status = http.StatusForbidden
			errStr = "Forbidden"
		case ledger.KindArithmetic:
			status = http.StatusInternalServerError
			errStr = "Internal Server Error"
		}
		writeJSON(w, status, ErrorResponse{
			StatusCode:    status,
			Error:         errStr,
			Message:       err.Error(),
			Reason:        string(rejErr.Reason),
			RejectionKind: rejErr.Kind.String(),
		})
		return
	}
	a.logger.Error("ledger request failed", "error", err)
	writeError(
		w,
		http.StatusInternalServerError,
		"Internal Server Error",
		"internal error",
	)
}

// writeQueryError is writeLedgerError for read endpoints, where a missing
// investor or slot is not found rather than a conflict
func (a *API) writeQueryError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrNotOptedIn) ||
		errors.Is(err, ledger.ErrSlotOutOfRange) {
		writeError(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	a.writeLedgerError(w, err)
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{IsHealthy: true})
}

func (a *API) handleListDaos(w http.ResponseWriter, _ *http.Request) {
	daos, err := a.ledger.ListDaos()
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	ret := make([]DaoSummaryResponse, 0, len(daos))
	for _, dao := range daos {
		ret = append(ret, newDaoSummaryResponse(dao))
	}
	writeJSON(w, http.StatusOK, ret)
}

func (a *API) handleGetDao(w http.ResponseWriter, r *http.Request) {
	state, err := a.ledger.State(mux.Vars(r)["id"])
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	daoID := mux.Vars(r)["id"]
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmissionSize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "failed to read body")
		return
	}
	if len(body) > maxSubmissionSize {
		writeError(
			w,
			http.StatusRequestEntityTooLarge,
			"Request Entity Too Large",
			"submission too large",
		)
		return
	}
	sub, err := ledger.ParseSubmission(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	group, err := sub.Group()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	state, err := a.ledger.Submit(r.Context(), daoID, group)
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStateResponse(state))
}

func (a *API) handleGetInvestor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	view, err := a.ledger.Investor(vars["id"], ledger.Address(vars["addr"]))
	if err != nil {
		a.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleGetSlot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	idx, err := strconv.ParseUint(vars["slot"], 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid slot index")
		return
	}
	status, err := a.ledger.VoteStatus(vars["id"], uint32(idx))
	if err != nil {
		a.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SlotResponse{
		Index:      uint32(idx),
		VoteStatus: status,
	})
}

func (a *API) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	daoID := mux.Vars(r)["id"]
	params, err := ParsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if _, err := a.ledger.State(daoID); err != nil {
		a.writeLedgerError(w, err)
		return
	}
	entries, total, err := a.ledger.Journal(
		daoID,
		params.Count,
		params.Offset(),
		params.Order == PaginationOrderDesc,
	)
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	ret := make([]JournalEntryResponse, 0, len(entries))
	for _, entry := range entries {
		ret = append(ret, newJournalEntryResponse(entry))
	}
	SetPaginationHeaders(w, total, params)
	writeJSON(w, http.StatusOK, ret)
}

func (a *API) handleDrainSplit(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	balance, err := strconv.ParseUint(query.Get("balance"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid balance")
		return
	}
	feeBP, err := strconv.ParseUint(query.Get("fee_bp"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", "invalid fee_bp")
		return
	}
	platform, central, err := ledger.DrainSplit(balance, feeBP)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, DrainSplitResponse{
		Balance:  balance,
		FeeBP:    feeBP,
		Platform: platform,
		Central:  central,
	})
}
