package main

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/arbor/models"
)

func newLogger(level string) arbor.ILogger {
	return arbor.NewLogger().WithConsoleWriter(models.WriterConfiguration{
		Type:             models.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString(level)
}
