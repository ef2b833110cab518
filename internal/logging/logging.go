// Package logging provides the per-agent file logger. Each agent writes to a
// size-rotated log under its own logs directory so sessions never interleave.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// JSONMode selects structured JSON log lines instead of the human format.
func JSONMode() bool {
	return os.Getenv("GPTAGENT_LOG_JSON") == "1"
}

// NewAgentLogger returns a structured logger writing to a size-rotated file
// under the agent's logs directory. The returned closer flushes the rotation
// handle.
func NewAgentLogger(agentDir, agentID string) (*StructuredLogger, io.Closer, error) {
	logDir := filepath.Join(agentDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "agent.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	base := log.New(rotator, "", log.LstdFlags|log.Lmicroseconds)
	return NewStructuredLogger(base, "agent", JSONMode()).WithAgent(agentID), rotator, nil
}
