// Package sinks ships the standard logging sink implementations: console for
// operators, JSON lines for ingestion, memory for tests.
package sinks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"triad-arena/server/logging"
)

type ConsoleSink struct {
	logger *log.Logger
}

func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{logger: log.New(w, "", log.LstdFlags)}
}

func (s *ConsoleSink) Write(event logging.Event) error {
	if s.logger == nil {
		return nil
	}
	s.logger.Printf("[%s] severity=%s actor=%s%s%s",
		event.Type, formatSeverity(event.Severity), formatEntity(event.Actor),
		formatTargets(event.Targets), formatExtra(event.Extra))
	return nil
}

func (s *ConsoleSink) Close(context.Context) error { return nil }

func formatSeverity(sev logging.Severity) string {
	switch sev {
	case logging.SeverityDebug:
		return "debug"
	case logging.SeverityInfo:
		return "info"
	case logging.SeverityWarn:
		return "warn"
	case logging.SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

func formatEntity(ref logging.EntityRef) string {
	if ref.ID == "" {
		return string(ref.Kind)
	}
	if ref.Kind == "" {
		return ref.ID
	}
	return fmt.Sprintf("%s:%s", ref.Kind, ref.ID)
}

func formatTargets(targets []logging.EntityRef) string {
	if len(targets) == 0 {
		return ""
	}
	parts := make([]string, 0, len(targets))
	for _, target := range targets {
		parts = append(parts, formatEntity(target))
	}
	return " targets=" + strings.Join(parts, ",")
}

func formatExtra(extra map[string]any) string {
	if len(extra) == 0 {
		return ""
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return fmt.Sprintf(" extra=%v", extra)
	}
	return " extra=" + string(data)
}
