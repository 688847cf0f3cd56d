// Package preflight provides readiness checks for the binaries, directories,
// devices, and services voxbrief depends on.
//
// The CLI "voxbrief status" command renders every result. "voxbrief record"
// and "voxbrief serve" run the same checks and refuse to start when a
// required one fails. Remote checks only run when asked, since they spend a
// request against the analysis API.
package preflight
