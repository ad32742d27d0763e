// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides build targets for metalens using Mage.
//
// Usage:
//
//	mage build             Compile the metalens binary to bin/
//	mage test:all          Unit tests with -race, then integration tests
//	mage test:unit         Package tests only
//	mage test:integration  Tests that build and drive the binary
//	mage test:cover        Unit coverage profile and summary
//	mage lint              Run go vet and golangci-lint
//	mage clean             Remove bin/ and the coverage profile
//	mage install           go install the metalens command
//	mage stats             Print Go line counts per package as JSON
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "metalens"
	binaryDir  = "bin"
	cmdDir     = "./cmd/metalens"
)

// Build compiles the metalens binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-trimpath", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	for _, p := range []string{binaryDir, coverProfile} {
		if err := sh.Rm(p); err != nil {
			return err
		}
	}
	return nil
}

// Install runs go install for the metalens command after the unit tests pass.
func Install() error {
	mg.Deps(Test.Unit)
	return sh.RunV(binGo, "install", "-trimpath", cmdDir)
}
