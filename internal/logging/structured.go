package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"
)

// entry is the JSON shape of one structured log line.
type entry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Agent     string                 `json:"agent,omitempty"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// StructuredLogger decorates a standard logger with level and agent context.
// Lines are emitted as JSON or a bracketed human format.
type StructuredLogger struct {
	logger    *log.Logger
	component string
	agent     string
	jsonMode  bool
}

func NewStructuredLogger(logger *log.Logger, component string, jsonMode bool) *StructuredLogger {
	return &StructuredLogger{
		logger:    logger,
		component: component,
		jsonMode:  jsonMode,
	}
}

// WithAgent returns a copy of the logger that stamps every line with the
// agent id.
func (s *StructuredLogger) WithAgent(agent string) *StructuredLogger {
	clone := *s
	clone.agent = agent
	return &clone
}

func (s *StructuredLogger) log(level string, msg string, fields map[string]interface{}) {
	if s.jsonMode {
		data, _ := json.Marshal(entry{
			Timestamp: time.Now().Format(time.RFC3339),
			Level:     level,
			Component: s.component,
			Agent:     s.agent,
			Message:   msg,
			Fields:    fields,
		})
		s.logger.Println(string(data))
		return
	}

	prefix := fmt.Sprintf("[%s] ", level)
	if s.component != "" {
		prefix += fmt.Sprintf("[%s] ", s.component)
	}
	if s.agent != "" {
		prefix += fmt.Sprintf("[agent:%s] ", s.agent)
	}
	line := prefix + msg
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		line += fmt.Sprintf(" %s=%v", k, fields[k])
	}
	s.logger.Println(line)
}

// Info logs at INFO level with optional structured fields.
func (s *StructuredLogger) Info(msg string, fields ...map[string]interface{}) {
	s.log("INFO", msg, mergeFields(fields...))
}

// Warn logs at WARN level with optional structured fields.
func (s *StructuredLogger) Warn(msg string, fields ...map[string]interface{}) {
	s.log("WARN", msg, mergeFields(fields...))
}

// Error logs at ERROR level with optional structured fields.
func (s *StructuredLogger) Error(msg string, fields ...map[string]interface{}) {
	s.log("ERROR", msg, mergeFields(fields...))
}

// Printf logs a formatted INFO line, matching the standard logger surface the
// store and expander accept.
func (s *StructuredLogger) Printf(format string, args ...interface{}) {
	s.Info(fmt.Sprintf(format, args...))
}

func mergeFields(fields ...map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, m := range fields {
		for k, v := range m {
			merged[k] = v
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}
