// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	integrationPkg = "./tests/integration/..."
	coverProfile   = "coverage.out"
)

// Test groups test targets (all, unit, integration, cover).
type Test mg.Namespace

// All runs unit tests with the race detector, then integration tests.
func (Test) All() {
	mg.SerialDeps(Test.Unit, Test.Integration)
}

// Unit runs the package tests, skipping the binary-driven integration suite.
func (Test) Unit() error {
	pkgs, err := unitPackages()
	if err != nil {
		return err
	}
	return sh.RunV(binGo, append([]string{"test", "-race"}, pkgs...)...)
}

// Integration runs the tests that build and drive the metalens binary.
func (Test) Integration() error {
	return sh.RunV(binGo, "test", "-count=1", integrationPkg)
}

// Cover writes a coverage profile for the unit packages and prints the
// per-function summary.
func (Test) Cover() error {
	pkgs, err := unitPackages()
	if err != nil {
		return err
	}
	args := append([]string{"test", "-coverprofile=" + coverProfile}, pkgs...)
	if err := sh.RunV(binGo, args...); err != nil {
		return err
	}
	return sh.RunV(binGo, "tool", "cover", "-func="+coverProfile)
}

func unitPackages() ([]string, error) {
	out, err := sh.Output(binGo, "list", "./...")
	if err != nil {
		return nil, err
	}
	var pkgs []string
	for pkg := range strings.SplitSeq(out, "\n") {
		if pkg != "" && !strings.Contains(pkg, "/tests/") {
			pkgs = append(pkgs, pkg)
		}
	}
	return pkgs, nil
}
