package compiler

import (
	"log"
	"os"

	"github.com/xyproto/env/v2"
)

// Options configures Generate.
type Options struct {
	// Entry is the function called by the start-up prelude. Empty means
	// no prelude is emitted.
	Entry string

	// Trace logs scope and stack events to Logger, or to stderr when
	// Logger is nil.
	Trace  bool
	Logger *log.Logger

	// Packer lays out call arguments. Nil means PackArguments.
	Packer ArgPacker
}

// OptionsFromEnv reads WORDCC_ENTRY and WORDCC_TRACE.
func OptionsFromEnv() Options {
	return Options{
		Entry: env.Str("WORDCC_ENTRY", "main"),
		Trace: env.Bool("WORDCC_TRACE"),
	}
}

func (o Options) logger() *log.Logger {
	if !o.Trace {
		return nil
	}
	if o.Logger != nil {
		return o.Logger
	}
	return log.New(os.Stderr, "wordcc: ", 0)
}
