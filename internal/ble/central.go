// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/internal/config"
	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

// ErrNotFound is returned when no bridge was seen before the scan ended
var ErrNotFound = errors.New("no haptic bridge found")

// Found is one bridge seen during a scan
type Found struct {
	Address string
	Name    string
	RSSI    int16

	addr bluetooth.Address
}

// Central scans for and connects to running bridges
type Central struct {
	adapter *bluetooth.Adapter
	cfg     config.BLE
	log     zerolog.Logger

	enableOnce sync.Once
	enableErr  error
}

// NewCentral creates a central on adapter, usually bluetooth.DefaultAdapter
func NewCentral(adapter *bluetooth.Adapter, cfg config.BLE, log zerolog.Logger) *Central {
	return &Central{adapter: adapter, cfg: cfg, log: log}
}

func (c *Central) enable() error {
	c.enableOnce.Do(func() {
		if err := c.adapter.Enable(); err != nil {
			c.enableErr = fmt.Errorf("failed to enable BLE adapter: %w", err)
		}
	})
	return c.enableErr
}

// scanFilter accepts each advertising bridge once, if its signal is strong enough
type scanFilter struct {
	minRSSI int
	seen    map[string]bool
}

func newScanFilter(minRSSI int) *scanFilter {
	return &scanFilter{minRSSI: minRSSI, seen: make(map[string]bool)}
}

func (f *scanFilter) accept(address string, rssi int16, hasService bool) bool {
	if !hasService || int(rssi) < f.minRSSI || f.seen[address] {
		return false
	}
	f.seen[address] = true
	return true
}

// Scan reports every bridge advertising the haptic service until timeout,
// ctx cancellation, or fn returning false.
func (c *Central) Scan(ctx context.Context, timeout time.Duration, fn func(Found) bool) error {
	ids, err := ParseUUIDs(c.cfg)
	if err != nil {
		return err
	}
	if err := c.enable(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.adapter.StopScan()
		case <-stopped:
		}
	}()
	defer close(stopped)

	filter := newScanFilter(c.cfg.MinRSSI)
	err = c.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
		addr := result.Address.String()
		if !filter.accept(addr, result.RSSI, result.HasServiceUUID(ids.Service)) {
			return
		}
		found := Found{
			Address: addr,
			Name:    result.LocalName(),
			RSSI:    result.RSSI,
			addr:    result.Address,
		}
		c.log.Debug().Str("address", addr).Int16("rssi", result.RSSI).Msg("bridge found")
		if !fn(found) {
			adapter.StopScan()
		}
	})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

// FindFirst scans until the first bridge is seen
func (c *Central) FindFirst(ctx context.Context, timeout time.Duration) (Found, error) {
	var first *Found
	err := c.Scan(ctx, timeout, func(f Found) bool {
		first = &f
		return false
	})
	if err != nil {
		return Found{}, err
	}
	if first == nil {
		return Found{}, ErrNotFound
	}
	return *first, nil
}

// Link is a connection to a bridge's haptic service
type Link struct {
	device bluetooth.Device
	write  bluetooth.DeviceCharacteristic
	status *bluetooth.DeviceCharacteristic
}

// Connect opens a link to a bridge found by Scan
func (c *Central) Connect(f Found) (*Link, error) {
	ids, err := ParseUUIDs(c.cfg)
	if err != nil {
		return nil, err
	}
	if err := c.enable(); err != nil {
		return nil, err
	}

	device, err := c.adapter.Connect(f.addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", f.Address, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{ids.Service})
	if err != nil || len(services) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("haptic service not found on %s: %v", f.Address, err)
	}

	// The status characteristic is optional, so discover everything and pick
	chars, err := services[0].DiscoverCharacteristics(nil)
	if err != nil {
		device.Disconnect()
		return nil, fmt.Errorf("characteristic discovery failed on %s: %w", f.Address, err)
	}

	link := &Link{device: device}
	var haveWrite bool
	for i := range chars {
		switch chars[i].UUID() {
		case ids.Write:
			link.write = chars[i]
			haveWrite = true
		case ids.Status:
			link.status = &chars[i]
		}
	}
	if !haveWrite {
		device.Disconnect()
		return nil, fmt.Errorf("write characteristic %s not found on %s", ids.Write, f.Address)
	}
	return link, nil
}

// Write sends one payload without waiting for a response
func (l *Link) Write(p []byte) (int, error) {
	return l.write.WriteWithoutResponse(p)
}

// HasStatus reports whether the bridge exposes the status characteristic
func (l *Link) HasStatus() bool {
	return l.status != nil
}

// ReadStatus reads the bridge status string
func (l *Link) ReadStatus() (string, error) {
	if l.status == nil {
		return "", fmt.Errorf("status characteristic not available")
	}
	buf := make([]byte, 256)
	n, err := l.status.Read(buf)
	if err != nil {
		return "", fmt.Errorf("status read failed: %w", err)
	}
	return string(buf[:n]), nil
}

// Close disconnects from the bridge
func (l *Link) Close() error {
	return l.device.Disconnect()
}
