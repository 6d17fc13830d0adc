// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package variant

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/AleutianAI/driftgate/eval"
)

// SummaryFileName is the metric document a command producer must write
// inside its output directory.
const SummaryFileName = "summary.json"

// -----------------------------------------------------------------------------
// Command Producer
// -----------------------------------------------------------------------------

// CommandProducer invokes an external benchmark command as the producer.
//
// Description:
//
//	The command is run once per variant with the variant's overrides
//	appended to its environment as DRIFTGATE_<KEY>=<value> and the output
//	directory passed as DRIFTGATE_OUTPUT_DIR. The command must write its
//	metric bundle to <outputDir>/summary.json. A non-zero exit or a
//	missing/unparseable summary is a producer failure.
//
// Thread Safety: Safe for concurrent use; each invocation is independent.
type CommandProducer struct {
	// Command is the program to invoke.
	Command string

	// Args are the fixed arguments, identical for every variant.
	Args []string
}

// NewCommandProducer creates a command producer.
func NewCommandProducer(command string, args ...string) *CommandProducer {
	return &CommandProducer{Command: command, Args: args}
}

// Produce implements Producer.
//
// Outputs:
//   - eval.Bundle: The parsed summary document.
//   - string: The summary path, even on parse failure, so the caller can
//     inspect the raw output.
//   - error: Non-nil on process failure or missing/invalid summary.
func (p *CommandProducer) Produce(ctx context.Context, v Variant, outputDir string) (eval.Bundle, string, error) {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return nil, "", fmt.Errorf("creating output dir: %w", err)
	}
	summaryPath := filepath.Join(outputDir, SummaryFileName)

	cmd := exec.CommandContext(ctx, p.Command, p.Args...)
	cmd.Env = append(os.Environ(), overrideEnv(v, outputDir)...)

	if out, err := cmd.CombinedOutput(); err != nil {
		// Keep the tail of the output for the failure reason; full logs
		// live in the output directory.
		return nil, summaryPath, fmt.Errorf("running %s for variant %s: %w (output: %s)",
			p.Command, v.Name, err, tail(out, 512))
	}

	data, err := os.ReadFile(summaryPath)
	if err != nil {
		return nil, summaryPath, fmt.Errorf("reading summary for variant %s: %w", v.Name, err)
	}

	var bundle eval.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, summaryPath, fmt.Errorf("parsing summary for variant %s: %w", v.Name, err)
	}

	return bundle, summaryPath, nil
}

// overrideEnv renders the variant's overrides as environment variables in a
// deterministic order.
func overrideEnv(v Variant, outputDir string) []string {
	keys := make([]string, 0, len(v.Overrides))
	for k := range v.Overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys)+2)
	env = append(env, "DRIFTGATE_VARIANT="+v.Name)
	env = append(env, "DRIFTGATE_OUTPUT_DIR="+outputDir)
	for _, k := range keys {
		env = append(env, "DRIFTGATE_"+envKey(k)+"="+v.Overrides[k])
	}
	return env
}

// envKey uppercases an override key for environment use.
func envKey(k string) string {
	out := make([]byte, len(k))
	for i := 0; i < len(k); i++ {
		c := k[i]
		switch {
		case c >= 'a' && c <= 'z':
			out[i] = c - 'a' + 'A'
		case (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9'):
			out[i] = c
		default:
			out[i] = '_'
		}
	}
	return string(out)
}

// tail returns at most n trailing bytes of out as a string.
func tail(out []byte, n int) string {
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return string(out)
}
