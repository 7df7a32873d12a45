// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/leader_arm/internal/config"
	"github.com/relabs-tech/leader_arm/internal/joints"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const wsWriteTimeout = 2 * time.Second

// jointsHub keeps the latest frame and fans it out to websocket clients.
// Slow clients miss frames rather than block the MQTT callback.
type jointsHub struct {
	mu   sync.RWMutex
	last joints.Frame
	have bool
	subs map[chan joints.Frame]struct{}
}

func newJointsHub() *jointsHub {
	return &jointsHub{subs: make(map[chan joints.Frame]struct{})}
}

func (h *jointsHub) update(f joints.Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = f
	h.have = true
	for ch := range h.subs {
		select {
		case ch <- f:
		default:
		}
	}
}

func (h *jointsHub) latest() (joints.Frame, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last, h.have
}

func (h *jointsHub) subscribe() chan joints.Frame {
	ch := make(chan joints.Frame, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *jointsHub) unsubscribe(ch chan joints.Frame) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// handleJoints serves the latest frame as JSON.
func (h *jointsHub) handleJoints(w http.ResponseWriter, r *http.Request) {
	f, ok := h.latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(f); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

// handleJointsWS streams frames to a websocket client, starting with the
// latest one if any.
func (h *jointsHub) handleJointsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	// The client never sends anything we need; reading detects its close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if f, ok := h.latest(); ok {
		if err := writeFrame(conn, f); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case f := <-ch:
			if err := writeFrame(conn, f); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f joints.Frame) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(f)
}

func (h *jointsHub) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/joints", h.handleJoints)
	mux.HandleFunc("/ws/joints", h.handleJointsWS)
	return mux
}

// RunWeb subscribes to TOPIC_JOINTS and serves the latest frame over HTTP
// (/api/joints) and as a websocket stream (/ws/joints).
func RunWeb(ctx context.Context, cfg *config.Config) error {
	hub := newJointsHub()

	// 1) Connect to MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe to joints topic and update the hub on each message
	token := client.Subscribe(cfg.TopicJoints, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f joints.Frame
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("web: MQTT payload unmarshal error: %v", err)
			return
		}
		hub.update(f)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to MQTT topic %s", cfg.TopicJoints)

	// 3) HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: hub.routes(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web: server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
