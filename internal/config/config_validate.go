// Pubcompass - Pub Discovery and Reconciliation Engine
// Copyright 2026 Pubcompass contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pubcompass/pubcompass

package config

import (
	"github.com/pubcompass/pubcompass/internal/validation"
)

func validateStruct(c *Config) error {
	return validation.ValidateStruct(c)
}
