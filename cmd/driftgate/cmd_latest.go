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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/driftgate/eval/artifact"
)

// runLatest resolves the most recent run record, pointer first with a
// directory scan fallback.
func runLatest(_ *cobra.Command, _ []string) error {
	path, err := artifact.ResolveLatest(artifactDir)
	if err != nil {
		return fmt.Errorf("resolving latest record: %w", err)
	}

	if !showRecord {
		fmt.Println(path)
		return nil
	}

	record, err := artifact.ReadRecord(path)
	if err != nil {
		return fmt.Errorf("reading record %s: %w", path, err)
	}
	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
