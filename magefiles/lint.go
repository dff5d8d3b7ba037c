//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import "github.com/magefile/mage/sh"

const binLint = "golangci-lint"

// Lint runs go vet and golangci-lint for both engine builds.
func Lint() error {
	if err := sh.RunV(binGo, "vet", "./..."); err != nil {
		return err
	}
	if err := sh.RunV(binGo, "vet", "-tags", cgoTag, "./..."); err != nil {
		return err
	}
	return sh.RunV(binLint, "run", "./...")
}
