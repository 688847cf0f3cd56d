// Package services defines shared utilities consumed by the recording pipeline
// stages and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the pipeline's error taxonomy (device, decode, transcription,
//     configuration, service, format).
//   - StatusMessage, which renders any stage error as the single status line
//     shown to the user.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error classification, observability) stays uniform across the pipeline.
package services
