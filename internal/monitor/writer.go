package monitor

import (
	"fmt"
	"io"
	"os"
	"time"

	"swarmlink/internal/packet"
)

// LineWriter prints packets as colorized lines, one per datagram. Used
// when STDOUT is not a terminal and the TUI cannot run.
type LineWriter struct {
	out io.Writer
}

// NewLineWriter creates a LineWriter writing to os.Stdout.
func NewLineWriter() *LineWriter {
	return &LineWriter{out: os.Stdout}
}

// Feed prints a single decoded packet.
func (w *LineWriter) Feed(p packet.Packet, from string, at time.Time) {
	fmt.Fprintln(w.out, formatPacket(p, from, at))
}
