// Package logger implements a per-run in-memory log buffer.
//
// Detailed lines of a refresh run are buffered while the run is in flight.
// If the run fails the buffer is replayed followed by the error; if it
// succeeds the buffer is dropped and a single summary line is written.
//
// All state lives in one goroutine fed by a command channel.
package logger

import (
	"bytes"
	"fmt"
	"log"
	"strings"
)

type action int

const (
	actBegin action = iota
	actAppend
	actSuccess
	actFlushErr
	actOutput
	actSync
)

type cmd struct {
	act     action
	runID   string
	message string
	err     error
	output  func(string, ...any)
	done    chan struct{}
}

var ch = make(chan cmd, 128)

// Begin enables buffering for runID.
func Begin(runID string) { ch <- cmd{act: actBegin, runID: runID} }

// Append adds a detailed line to the run buffer. Without a buffer the line
// is written immediately.
func Append(runID, msg string) { ch <- cmd{act: actAppend, runID: runID, message: msg} }

// Appendf is Append with formatting.
func Appendf(runID, format string, args ...any) { Append(runID, fmt.Sprintf(format, args...)) }

// Success drops the buffer and writes one summary line.
func Success(runID, summary string) { ch <- cmd{act: actSuccess, runID: runID, message: summary} }

// FlushError replays the buffer and then the final error.
func FlushError(runID string, err error) { ch <- cmd{act: actFlushErr, runID: runID, err: err} }

// SetOutput redirects every line to out. nil restores log.Printf.
func SetOutput(out func(string, ...any)) { ch <- cmd{act: actOutput, output: out} }

// Sync blocks until every command sent before it has been written.
func Sync() {
	done := make(chan struct{})
	ch <- cmd{act: actSync, done: done}
	<-done
}

func init() { go runloop() }

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runloop() {
	buffers := make(map[string]*bytes.Buffer)
	out := log.Printf

	for c := range ch {
		switch c.act {
		case actBegin:
			buffers[c.runID] = &bytes.Buffer{}

		case actAppend:
			if b := buffers[c.runID]; b != nil {
				_, _ = b.WriteString(c.message + "\n")
			} else {
				out("%s", c.message)
			}

		case actSuccess:
			out("[%-8s][refresh] %s", shortID(c.runID), c.message)
			delete(buffers, c.runID)

		case actFlushErr:
			if b := buffers[c.runID]; b != nil {
				for _, ln := range strings.Split(strings.TrimRight(b.String(), "\n"), "\n") {
					if ln != "" {
						out("[%-8s] %s", shortID(c.runID), ln)
					}
				}
				delete(buffers, c.runID)
			}
			out("[%-8s][ERROR] %v", shortID(c.runID), c.err)

		case actOutput:
			if c.output == nil {
				out = log.Printf
			} else {
				out = c.output
			}

		case actSync:
			close(c.done)
		}
	}
}
