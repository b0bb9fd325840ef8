// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package ble

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/internal/config"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/bridge"
	"github.com/rs/zerolog"
	"tinygo.org/x/bluetooth"
)

// Peripheral advertises the haptic service and feeds writes to the bridge
type Peripheral struct {
	adapter *bluetooth.Adapter
	cfg     config.BLE
	bridge  *bridge.Bridge
	log     zerolog.Logger

	statusMu sync.Mutex
	status   io.Writer // status characteristic once registered
}

// NewPeripheral creates a peripheral on adapter, usually bluetooth.DefaultAdapter
func NewPeripheral(adapter *bluetooth.Adapter, cfg config.BLE, b *bridge.Bridge, log zerolog.Logger) *Peripheral {
	return &Peripheral{
		adapter: adapter,
		cfg:     cfg,
		bridge:  b,
		log:     log,
	}
}

// Run registers the service, advertises it and blocks until ctx is cancelled.
// Setup failures are returned and are fatal for the bridge.
func (p *Peripheral) Run(ctx context.Context) error {
	ids, err := ParseUUIDs(p.cfg)
	if err != nil {
		return err
	}

	if err := p.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	var statusChar bluetooth.Characteristic
	err = p.adapter.AddService(&bluetooth.Service{
		UUID: ids.Service,
		Characteristics: []bluetooth.CharacteristicConfig{
			{
				UUID: ids.Write,
				Flags: bluetooth.CharacteristicWritePermission |
					bluetooth.CharacteristicWriteWithoutResponsePermission,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					p.handleWrite(ctx, offset, value)
				},
			},
			{
				Handle: &statusChar,
				UUID:   ids.Status,
				Value:  p.bridge.HandleStatusRead(),
				Flags: bluetooth.CharacteristicReadPermission |
					bluetooth.CharacteristicNotifyPermission,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to register haptic service: %w", err)
	}
	p.setStatusWriter(&statusChar)

	// Any write, BLE or websocket, refreshes the readable status value
	unsubscribe := p.bridge.Subscribe(func(bridge.Report) {
		p.refreshStatus()
	})
	defer unsubscribe()

	adv := p.adapter.DefaultAdvertisement()
	err = adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    p.cfg.Name,
		ServiceUUIDs: []bluetooth.UUID{ids.Service},
	})
	if err != nil {
		return fmt.Errorf("failed to configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("failed to start advertising: %w", err)
	}

	p.log.Info().
		Str("name", p.cfg.Name).
		Str("service", ids.Service.String()).
		Msg("advertising haptic service")

	<-ctx.Done()

	if err := adv.Stop(); err != nil {
		p.log.Warn().Err(err).Msg("failed to stop advertising")
	}
	return nil
}

// handleWrite is the write characteristic callback. The transport
// acknowledgement does not depend on the outcome.
func (p *Peripheral) handleWrite(ctx context.Context, offset int, value []byte) {
	if offset != 0 {
		p.log.Debug().Int("offset", offset).Int("bytes", len(value)).Msg("write at nonzero offset")
	}
	p.bridge.HandleWrite(ctx, value)
}

func (p *Peripheral) setStatusWriter(w io.Writer) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.status = w
	p.writeStatusLocked()
}

// refreshStatus publishes the current status string to the status characteristic
func (p *Peripheral) refreshStatus() {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	p.writeStatusLocked()
}

func (p *Peripheral) writeStatusLocked() {
	if p.status == nil {
		return
	}
	if _, err := p.status.Write(p.bridge.HandleStatusRead()); err != nil {
		p.log.Debug().Err(err).Msg("status characteristic update failed")
	}
}
