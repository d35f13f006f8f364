// Copyright 2025 Poiesic Systems
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

package notify

import (
	"errors"
	"time"
)

// Config holds dispatcher settings.
type Config struct {
	// MaxAttempts is the number of delivery attempts before an event is exhausted.
	MaxAttempts int

	// BaseDelay is the wait after the first failed attempt; it doubles per failure.
	BaseDelay time.Duration

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration

	// SweepInterval is how often Run retries due events.
	SweepInterval time.Duration

	// DeliveryTimeout bounds a single delivery attempt.
	DeliveryTimeout time.Duration

	// Workers bounds concurrent background attempts.
	Workers int

	// Alerts sends an operator alert when an event is exhausted or the
	// pipeline quarantines a record.
	Alerts bool

	// Digest groups the events due at a sweep into one notification.
	// Events are then only attempted by the sweep.
	Digest bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:     5,
		BaseDelay:       30 * time.Second,
		MaxDelay:        30 * time.Minute,
		SweepInterval:   time.Minute,
		DeliveryTimeout: 30 * time.Second,
		Workers:         2,
		Alerts:          true,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("notify config: MaxAttempts must be at least 1")
	}
	if c.BaseDelay < 0 || c.MaxDelay < 0 {
		return errors.New("notify config: retry delays must not be negative")
	}
	if c.SweepInterval <= 0 {
		return errors.New("notify config: SweepInterval must be positive")
	}
	if c.DeliveryTimeout <= 0 {
		return errors.New("notify config: DeliveryTimeout must be positive")
	}
	if c.Workers < 1 {
		return errors.New("notify config: Workers must be at least 1")
	}
	return nil
}
