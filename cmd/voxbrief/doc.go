// Package main hosts the voxbrief CLI entrypoint and command graph.
//
// "record" captures the microphone until Enter or a signal, then transcribes
// and analyzes the recording. "analyze" runs the same chain on an existing
// audio file. "serve" exposes the session controller to a browser page over
// HTTP and a websocket. "status" reports dependency and device readiness, and
// "config" scaffolds and prints configuration.
//
// The heavy lifting lives in internal packages; this package resolves
// configuration, loads .env files, wires the controller, and renders results.
package main
