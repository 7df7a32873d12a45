// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	bugst "go.bug.st/serial"

	"github.com/relabs-tech/leader_arm/internal/calibration"
)

var (
	// ErrPortNotFound means no port disappeared while the cable was unplugged.
	ErrPortNotFound = errors.New("could not detect the port: no difference was found")

	// ErrAmbiguousPort means more than one port disappeared.
	ErrAmbiguousPort = errors.New("could not detect the port: more than one port was found")
)

// PortLister returns the serial ports currently present.
type PortLister func() ([]string, error)

// ListPorts enumerates the serial ports of the host.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	sort.Strings(ports)
	return ports, nil
}

// DetectPort finds the leader arm's port by asking the operator to unplug it
// and comparing the port lists before and after.
func DetectPort(ctx context.Context, prompter calibration.Prompter, list PortLister) (string, error) {
	if list == nil {
		list = ListPorts
	}

	before, err := list()
	if err != nil {
		return "", err
	}

	if err := prompter.Confirm(ctx, "Remove the USB cable from your system and press Enter when done."); err != nil {
		return "", err
	}
	// let the OS release the device node
	if err := sleepCtx(ctx, 500*time.Millisecond); err != nil {
		return "", err
	}

	after, err := list()
	if err != nil {
		return "", err
	}

	diff := portsRemoved(before, after)
	switch len(diff) {
	case 1:
		return diff[0], nil
	case 0:
		return "", ErrPortNotFound
	default:
		return "", fmt.Errorf("%w (%s)", ErrAmbiguousPort, strings.Join(diff, ", "))
	}
}

func portsRemoved(before, after []string) []string {
	present := make(map[string]bool, len(after))
	for _, p := range after {
		present[p] = true
	}
	var diff []string
	for _, p := range before {
		if !present[p] {
			diff = append(diff, p)
		}
	}
	sort.Strings(diff)
	return diff
}

// LoadPortFile reads the port name saved by SavePortFile.
func LoadPortFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open port file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("error reading port file: %w", err)
		}
		return "", fmt.Errorf("port file %s is empty", path)
	}
	port := strings.TrimSpace(scanner.Text())
	if port == "" {
		return "", fmt.Errorf("port file %s is empty", path)
	}
	return port, nil
}

// SavePortFile stores the port name on a single line.
func SavePortFile(path, port string) error {
	if err := os.WriteFile(path, []byte(port+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write port file: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
