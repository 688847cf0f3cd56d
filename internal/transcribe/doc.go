// Package transcribe turns a 16 kHz mono audio buffer into plain text.
//
// Backends implement Transcriber and Loader. WhisperX runs the open-source
// WhisperX pipeline through uvx on a WAV file written to the work directory;
// OpenAI uploads the WAV to the audio transcription endpoint with go-openai.
// Invoke wraps any Transcriber so that failures and empty transcripts both
// surface as services.ErrTranscription.
package transcribe
