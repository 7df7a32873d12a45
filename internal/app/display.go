package app

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/leader_arm/internal/config"
	"github.com/relabs-tech/leader_arm/internal/joints"
)

const (
	displayWidth  = 128
	displayHeight = 64
)

// DisplayData holds the latest frame for display
type DisplayData struct {
	mu        sync.RWMutex
	frame     joints.Frame
	haveFrame bool
	updated   time.Time
}

func (d *DisplayData) set(f joints.Frame) {
	d.mu.Lock()
	d.frame = f
	d.haveFrame = true
	d.updated = time.Now()
	d.mu.Unlock()
}

func (d *DisplayData) snapshot() (joints.Frame, bool, time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frame, d.haveFrame, d.updated
}

// addrBus sends every transaction to a fixed address, so the panel can sit at
// DISPLAY_I2C_ADDR instead of the driver's default.
type addrBus struct {
	i2c.Bus
	addr uint16
}

func (b addrBus) Tx(_ uint16, w, r []byte) error {
	return b.Bus.Tx(b.addr, w, r)
}

// RunDisplay shows the leader arm's joints on an SSD1306 OLED, fed by MQTT.
func RunDisplay(ctx context.Context, cfg *config.Config) error {
	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(addrBus{Bus: bus, addr: cfg.DisplayI2CAddr}, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &DisplayData{}

	// Connect to MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicJoints, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f joints.Frame
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("display: joints unmarshal error: %v", err)
			return
		}
		data.set(f)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicJoints)

	// Display update loop
	ticker := time.NewTicker(config.Millis(cfg.DisplayUpdateInterval))
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f, ok, _ := data.snapshot()
			if err := dev.Draw(dev.Bounds(), renderJoints(f, ok), image.Point{}); err != nil {
				log.Printf("display: error updating display: %v", err)
			}
		}
	}
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

// renderJoints lays the pose out as three rows of two joints plus a status row.
func renderJoints(f joints.Frame, haveData bool) *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	if !haveData {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawString("Leader arm")
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawString("Waiting...")
		return img
	}

	p := f.Pose
	rows := []string{
		fmt.Sprintf("J0%7.1f J1%6.1f", p[joints.Joint0], p[joints.Joint1]),
		fmt.Sprintf("J2%7.1f J3%6.1f", p[joints.Joint2], p[joints.Joint3]),
		fmt.Sprintf("J4%7.1f G %6.1f", p[joints.Joint4], p[joints.Gripper]),
		fmt.Sprintf("seq %d", f.Seq),
	}
	for i, row := range rows {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawString(row)
	}
	return img
}

func renderSplash() *image1bit.VerticalLSB {
	img, drawer := newCanvas()

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawString("Leader Arm")

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawString("AS5600 x 6")

	return img
}
