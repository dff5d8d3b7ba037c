//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for the litewrap project using Mage.
//
// Usage:
//
//	mage build        Compile the litewrap binary to bin/
//	mage buildCgo     Compile against mattn/go-sqlite3 instead of the pure Go engine
//	mage test:all     Run all tests
//	mage test:unit    Run tests without the race detector or cgo
//	mage test:cgo     Run all tests with the cgo_sqlite build tag
//	mage lint         Run golangci-lint
//	mage clean        Remove build artifacts
//	mage install      Install litewrap to GOPATH/bin
//	mage stats        Print Go LOC per package
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "litewrap"
	binaryDir  = "bin"
	cmdDir     = "./cmd/litewrap"
	cgoTag     = "cgo_sqlite"
)

// Build compiles the litewrap binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// BuildCgo compiles the litewrap binary with the cgo engine adapter.
func BuildCgo() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunWithV(map[string]string{"CGO_ENABLED": "1"},
		binGo, "build", "-v", "-tags", cgoTag, "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
