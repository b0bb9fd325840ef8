// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package ble connects the bridge to BlueZ through tinygo bluetooth.
//
// The Peripheral runs on the bridge host and exposes the haptic service.
// The Central is the development counterpart used to scan for and write to
// a running bridge from another machine.
package ble

import (
	"fmt"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/internal/config"
	"tinygo.org/x/bluetooth"
)

// ServiceUUIDs holds the parsed identifiers of the haptic service
type ServiceUUIDs struct {
	Service bluetooth.UUID
	Write   bluetooth.UUID
	Status  bluetooth.UUID
}

// ParseUUIDs parses the service and characteristic UUIDs from the BLE config
func ParseUUIDs(cfg config.BLE) (ServiceUUIDs, error) {
	var ids ServiceUUIDs
	var err error
	if ids.Service, err = bluetooth.ParseUUID(cfg.ServiceUUID); err != nil {
		return ServiceUUIDs{}, fmt.Errorf("service uuid %q: %w", cfg.ServiceUUID, err)
	}
	if ids.Write, err = bluetooth.ParseUUID(cfg.WriteUUID); err != nil {
		return ServiceUUIDs{}, fmt.Errorf("write uuid %q: %w", cfg.WriteUUID, err)
	}
	if ids.Status, err = bluetooth.ParseUUID(cfg.StatusUUID); err != nil {
		return ServiceUUIDs{}, fmt.Errorf("status uuid %q: %w", cfg.StatusUUID, err)
	}
	return ids, nil
}
