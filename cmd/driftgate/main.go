// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes are part of the CI contract: 0 means the gate passed, 1 means
// it ran to completion and failed, 2 means it could not run at all.
const (
	exitPass        = 0
	exitFail        = 1
	exitUnavailable = 2
)

// errGateFailed marks a completed run whose verdict is FAIL. Every other
// error from a command means the gate could not run.
var errGateFailed = errors.New("gate failed")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errGateFailed) {
			os.Exit(exitFail)
		}
		fmt.Fprintln(os.Stderr, "driftgate:", err)
		os.Exit(exitUnavailable)
	}
	os.Exit(exitPass)
}
