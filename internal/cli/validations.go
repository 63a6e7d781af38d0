package cli

import (
	"github.com/shivanshkc/streamlat/internal/config"
)

// validateRootFlags validates the transport settings shared by all commands.
func validateRootFlags() string {
	// The memory transport needs no broker address.
	if cfg.Transport.Kind == config.KindMemory {
		return ""
	}

	// Host is required.
	if cfg.Transport.Host == "" {
		return "Host is required."
	}

	// Port must be a valid TCP port.
	if cfg.Transport.Port < 1 || cfg.Transport.Port > 65535 {
		return "Port must be between 1 and 65535."
	}

	if cfg.Transport.InitTimeout < 0 {
		return "Init timeout must not be negative."
	}

	return ""
}

// validateBenchFlags validates the flags of the bench command.
func validateBenchFlags() string {
	// Root command flags are used by the bench command too.
	if message := validateRootFlags(); message != "" {
		return message
	}

	run := cfg.Run

	if run.DT < 0 {
		return "DT must not be negative."
	}

	if run.BatchSize <= 0 {
		return "Batch size must be greater than 0."
	}

	if run.NSamples <= 0 {
		return "Sample count must be greater than 0."
	}

	if run.SampleSize <= 0 {
		return "Sample size must be greater than 0."
	}

	if run.NumReaders <= 0 {
		return "Reader count must be greater than 0."
	}

	if run.Settle < 0 {
		return "Settle must not be negative."
	}

	// A memory broker lives inside one process, so its readers must too.
	if cfg.Transport.Kind == config.KindMemory && run.ReaderMode != config.ReaderModeThread {
		return "The memory transport requires --reader-mode thread."
	}

	return ""
}

// validateRecordFlags validates the flags of the record command.
func validateRecordFlags() string {
	if message := validateRootFlags(); message != "" {
		return message
	}

	// Stream name is required.
	if recordStream == "" {
		return "A stream name is required."
	}

	if recordReaderID < 0 {
		return "Reader id must not be negative."
	}

	if recordBatchSize <= 0 {
		return "Batch size must be greater than 0."
	}

	return ""
}
