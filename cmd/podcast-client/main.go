// main package for the podcast-client command line tool
package main

import (
	"fmt"
	"os"

	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/book-expert/podcast-service/internal/config"
)

// version is set at build time.
var version = "dev"

// File names.
const (
	logFileNameBootstrap = "podcast-client-bootstrap.log"
	logFileNameDefault   = "podcast-client.log"
	logFileNameVerbose   = "podcast-client-verbose.log"
)

// Flag names and descriptions.
const (
	flagVerbose     = "verbose"
	flagSpeakers    = "speakers"
	flagConcept     = "concept"
	flagLink        = "link"
	flagOutput      = "output"
	flagScriptFile  = "script-file"
	flagVerboseDesc = "Write a verbose log file"
	flagSpeakerDesc = "Number of avatar slots"
	flagConceptDesc = "Podcast concept"
	flagLinkDesc    = "Reference link (repeatable)"
	flagOutputDesc  = "Output path (defaults to the configured output directory)"
	flagScriptDesc  = "Transcript file to use instead of generating one"
)

// Error messages.
const (
	errFailedToLoadConfig = "failed to load configuration: %w"
	errFailedToInitLogger = "failed to initialize logger: %w"
	errFailedToReadFile   = "failed to read %s: %w"
	errFailedToWriteFile  = "failed to write %s: %w"
)

// environment carries what every networked command needs.
type environment struct {
	cfg *config.Config
	log *logger.Logger
}

func (e *environment) Close() {
	closeErr := e.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

// loadEnvironment reads .env, loads the project configuration and opens the client log.
func loadEnvironment(verbose bool) (*environment, error) {
	_ = godotenv.Load()

	bootstrapLog, err := logger.New(os.TempDir(), logFileNameBootstrap)
	if err != nil {
		return nil, fmt.Errorf(errFailedToInitLogger, err)
	}
	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		return nil, fmt.Errorf(errFailedToLoadConfig, err)
	}

	logFileName := logFileNameDefault
	if verbose {
		logFileName = logFileNameVerbose
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	return &environment{cfg: cfg, log: log}, nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "podcast-client",
		Short: "Drive the podcast avatar pipeline from the command line",
		Long: `podcast-client talks to the collaborator services and the podcast-service worker.

It can preview how a transcript is split between avatar slots, generate scripts and
voices locally, digest reference links, and submit whole jobs over NATS. Avatars can be
rendered one slot at a time into the shared library and presented in a live session.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool(flagVerbose, false, flagVerboseDesc)

	rootCmd.AddCommand(
		newSegmentCmd(),
		newHealthCmd(),
		newScriptCmd(),
		newVoicesCmd(),
		newLinksCmd(),
		newSubmitCmd(),
		newAvatarCmd(),
		newLiveCmd(),
	)

	return rootCmd
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
