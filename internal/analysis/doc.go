// Package analysis sends a transcript to a chat-completion service and parses
// the business-intelligence summary it returns.
//
// Each Analyze call issues exactly one request and never retries. An empty
// credential fails with services.ErrConfiguration before any network I/O, a
// non-2xx status with services.ErrService, and a body that is not the
// expected JSON object with services.ErrFormat.
package analysis
