// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build tools

// Package main pins the test runners to go.mod so the integration suite
// (go run github.com/onsi/ginkgo/v2/ginkgo -tags integration ./test/...) uses
// the same versions as the package tests.
package main

import (
	_ "github.com/onsi/ginkgo/v2/ginkgo"
	_ "github.com/onsi/gomega"
	_ "github.com/stretchr/testify/require"
	_ "go.uber.org/goleak"
)
