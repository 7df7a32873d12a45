// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/leader_arm/internal/calibration"
	"github.com/relabs-tech/leader_arm/internal/config"
)

// RunProducer reads the leader arm and publishes every new frame as JSON to
// TOPIC_JOINTS, and the raw codes to TOPIC_RAW.
func RunProducer(ctx context.Context, cfg *config.Config, opts RunOptions) error {
	log.Println("starting leader-arm producer (AS5600 → MQTT)")

	prompter := calibration.NewConsolePrompter(os.Stdin, os.Stdout)
	session, err := openSession(ctx, cfg, opts, prompter)
	if err != nil {
		return err
	}
	defer session.Close()

	// --- connect to MQTT ---
	mqttOpts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer)

	client := mqtt.NewClient(mqttOpts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)

	log.Printf("producer: connected to MQTT broker at %s, starting publish loop", cfg.MQTTBroker)

	ticker := time.NewTicker(config.Millis(cfg.ReadInterval))
	defer ticker.Stop()
	logTicker := time.NewTicker(config.Millis(cfg.ConsoleLogInterval))
	defer logTicker.Stop()

	published := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("producer: shutting down after %d frames", published)
			return nil

		case <-session.Sampler().Done():
			return session.Sampler().Err()

		case t := <-logTicker.C:
			frame, ok := session.Last()
			if !ok {
				log.Printf("producer: waiting for data from the leader arm")
				continue
			}
			p := frame.Pose
			log.Printf("%s tick: pose j0=%.2f j1=%.2f j2=%.2f j3=%.2f j4=%.2f grip=%.2f | raw %v | frames=%d malformed=%d",
				t.Format(time.RFC3339),
				p[0], p[1], p[2], p[3], p[4], p[5],
				frame.Raw, published, session.Sampler().Malformed(),
			)

		case <-ticker.C:
			frame, ok := session.Read()
			if !ok {
				continue
			}

			payload, err := json.Marshal(frame)
			if err != nil {
				log.Printf("producer: json marshal error (joints): %v", err)
				continue
			}
			if token := client.Publish(cfg.TopicJoints, 0, true, payload); token.Wait() && token.Error() != nil {
				log.Printf("producer: MQTT publish error (joints): %v", token.Error())
				continue
			}
			published++

			if cfg.TopicRaw == "" {
				continue
			}
			raw, err := json.Marshal(frame.Raw)
			if err != nil {
				log.Printf("producer: json marshal error (raw): %v", err)
				continue
			}
			if token := client.Publish(cfg.TopicRaw, 0, false, raw); token.Wait() && token.Error() != nil {
				log.Printf("producer: MQTT publish error (raw): %v", token.Error())
			}
		}
	}
}
