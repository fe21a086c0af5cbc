// Package transcribe is a client for the AssemblyAI speech-to-text API and
// its LeMUR task endpoint.
//
// Audio is uploaded, a transcript job is submitted and then polled until it
// completes. LeMUR runs a free-form prompt against finished transcripts.
package transcribe
