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
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/capidao/capiledger/event"
	"github.com/capidao/capiledger/ledger"
	"github.com/gorilla/websocket"
)

const (
	eventsWriteTimeout = 10 * time.Second
	eventsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// eventDaoID returns the DAO a ledger event refers to
func eventDaoID(evt event.Event) (string, bool) {
	switch data := evt.Data.(type) {
	case ledger.OperationAppliedEvent:
		return data.DaoID, true
	case ledger.OperationRejectedEvent:
		return data.DaoID, true
	}
	return "", false
}

var errStreamBehind = errors.New("event stream client is behind")

// streamSubscriber feeds one websocket client. It drops events for other DAOs
// at delivery and reports a full buffer, which makes the bus remove it.
type streamSubscriber struct {
	daoID  string
	ch     chan event.Event
	mu     sync.Mutex
	closed bool
}

func newStreamSubscriber(daoID string) *streamSubscriber {
	return &streamSubscriber{
		daoID: daoID,
		ch:    make(chan event.Event, event.EventQueueSize),
	}
}

func (s *streamSubscriber) Deliver(evt event.Event) error {
	if s.daoID != "" {
		if daoID, ok := eventDaoID(evt); !ok || daoID != s.daoID {
			return nil
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	select {
	case s.ch <- evt:
		return nil
	default:
		return errStreamBehind
	}
}

func (s *streamSubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// handleEvents streams ledger events as JSON messages over a websocket. The
// optional dao query parameter limits the stream to one DAO.
func (a *API) handleEvents(w http.ResponseWriter, r *http.Request) {
	daoFilter := r.URL.Query().Get("dao")
	// Subscribe before the handshake completes so the client sees every event
	// published after it is connected
	sub := newStreamSubscriber(daoFilter)
	subID := a.eventBus.RegisterSubscriber(event.AllEvents, sub)
	defer a.eventBus.Unsubscribe(event.AllEvents, subID)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response
		a.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	// The reader only exists to notice the client going away
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		_ = conn.Close()
		<-done
	}()

	a.logger.Debug("event stream opened", "remote", r.RemoteAddr, "dao", daoFilter)
	ticker := time.NewTicker(eventsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case evt, ok := <-sub.ch:
			if !ok {
				_ = conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(
						websocket.CloseGoingAway,
						"event stream closed",
					),
					time.Now().Add(eventsWriteTimeout),
				)
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				a.logger.Debug("event stream write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(
				websocket.PingMessage,
				nil,
				time.Now().Add(eventsWriteTimeout),
			); err != nil {
				return
			}
		}
	}
}
