package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"voxbrief/internal/session"
)

var errSessionFailed = errors.New("session failed")

// finishSession prints snap and turns an Error state into a non-zero exit.
func finishSession(cmd *cobra.Command, snap session.Snapshot, jsonOutput bool) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(snap); err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
	} else {
		renderSnapshot(out, snap, shouldColorize(out))
	}
	if snap.State == session.StateError {
		return fmt.Errorf("%w: %s", errSessionFailed, snap.Status)
	}
	return nil
}
