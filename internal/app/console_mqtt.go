package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/leader_arm/internal/config"
	"github.com/relabs-tech/leader_arm/internal/joints"
)

func RunConsoleMQTT(ctx context.Context, cfg *config.Config) error {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to joints
	jointsToken := client.Subscribe(cfg.TopicJoints, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f joints.Frame
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: joints unmarshal error: %v", err)
			return
		}
		fmt.Println(formatFrame(f))
	})
	jointsToken.Wait()
	if jointsToken.Error() != nil {
		return jointsToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicJoints)

	// Subscribe to raw codes
	if cfg.TopicRaw != "" {
		rawToken := client.Subscribe(cfg.TopicRaw, 0, func(_ mqtt.Client, msg mqtt.Message) {
			fmt.Printf("[RAW ]  %s\n", msg.Payload())
		})
		rawToken.Wait()
		if rawToken.Error() != nil {
			return rawToken.Error()
		}
		log.Printf("console: subscribed to %s", cfg.TopicRaw)
	}

	// Wait for Ctrl+C
	<-ctx.Done()

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func formatFrame(f joints.Frame) string {
	p := f.Pose
	return fmt.Sprintf(
		"[POSE]  J0=%7.2f  J1=%7.2f  J2=%7.2f  J3=%7.2f  J4=%7.2f  GRIP=%6.2f  seq=%d",
		p[joints.Joint0], p[joints.Joint1], p[joints.Joint2], p[joints.Joint3], p[joints.Joint4], p[joints.Gripper], f.Seq,
	)
}
