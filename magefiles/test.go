//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Test groups test targets (all, unit, cgo, cover).
type Test mg.Namespace

// All runs every test with the race detector.
func (Test) All() error {
	return sh.RunV(binGo, "test", "-race", "-v", "./...")
}

// Unit runs every test on the pure Go engine without the race detector, so it
// works where cgo is unavailable.
func (Test) Unit() error {
	return sh.RunWithV(map[string]string{"CGO_ENABLED": "0"}, binGo, "test", "./...")
}

// Cgo runs every test against mattn/go-sqlite3.
func (Test) Cgo() error {
	return sh.RunWithV(map[string]string{"CGO_ENABLED": "1"}, binGo, "test", "-tags", cgoTag, "./...")
}

// Cover writes a coverage profile to bin/coverage.out and prints the summary.
func (Test) Cover() error {
	mg.Deps(mkBinDir)
	profile := binaryDir + "/coverage.out"
	if err := sh.RunV(binGo, "test", "-coverprofile", profile, "./..."); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func", profile)
}

func mkBinDir() error {
	return sh.Run("mkdir", "-p", binaryDir)
}
