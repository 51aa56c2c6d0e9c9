package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/links"
	"github.com/book-expert/podcast-service/internal/pipeline"
	"github.com/book-expert/podcast-service/internal/segment"
	"github.com/book-expert/podcast-service/internal/services"
	"github.com/book-expert/podcast-service/internal/worker"
)

const (
	healthTimeout   = 10 * time.Second
	submitTimeout   = 15 * time.Minute
	dirPermissions  = 0o755
	filePerms       = 0o644
	defaultScript   = "script.txt"
	audioFilePrefix = "speaker-"
)

var (
	errUnhealthy      = errors.New("one or more collaborators are unhealthy")
	errNeedsInput     = errors.New("either --concept or --script-file must be provided")
	errBothInputs     = errors.New("cannot specify both --concept and --script-file")
	errNoVoices       = errors.New("no voice could be generated")
	errJobFailed      = errors.New("job failed")
	errInvalidSpeaker = errors.New("--speakers must be positive")
	errInvalidGender  = errors.New("profile gender must be male or female")
)

func newSegmentCmd() *cobra.Command {
	var speakers int

	cmd := &cobra.Command{
		Use:   "segment [transcript-file]",
		Short: "Show the text each avatar slot would speak",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf(errFailedToReadFile, args[0], err)
			}

			return writeSegments(cmd.OutOrStdout(), string(data), speakers)
		},
	}

	cmd.Flags().IntVar(&speakers, flagSpeakers, 0, flagSpeakerDesc+" (defaults to the speakers found)")

	return cmd
}

// writeSegments prints every slot's text. speakers <= 0 uses the distinct speakers found.
func writeSegments(out io.Writer, transcript string, speakers int) error {
	parsed := segment.Parse(transcript)
	if speakers <= 0 {
		speakers = parsed.SpeakerCount()
	}

	fmt.Fprintf(out, "Found %d speaker(s) in %d block(s)\n", parsed.SpeakerCount(), len(parsed.Blocks))

	for slot := range speakers {
		text := parsed.TextFor(slot)
		if text == "" {
			text = "(no text)"
		}

		_, err := fmt.Fprintf(out, "\nSlot %d:\n%s\n", slot+1, text)
		if err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}

	return nil
}

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check every collaborator service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadFromFlags(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
			defer cancel()

			results := services.NewSet(env.cfg.Services).Health(ctx)
			for _, result := range results {
				if result.Err != nil {
					env.log.Error("Health check failed for %s: %v", result.Name, result.Err)
				}
			}

			return writeHealth(cmd.OutOrStdout(), results)
		},
	}
}

func writeHealth(out io.Writer, results []services.HealthResult) error {
	unhealthy := 0

	for _, result := range results {
		status := "healthy"
		if result.Err != nil {
			status = "unhealthy: " + result.Err.Error()
			unhealthy++
		}

		fmt.Fprintf(out, "%-9s %s %s\n", result.Name, result.URL, status)
	}

	if unhealthy > 0 {
		return fmt.Errorf("%w: %d of %d", errUnhealthy, unhealthy, len(results))
	}

	return nil
}

func newScriptCmd() *cobra.Command {
	var (
		concept  string
		linkArgs []string
		speakers int
		output   string
	)

	cmd := &cobra.Command{
		Use:   "script",
		Short: "Generate a podcast script and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadFromFlags(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			if speakers <= 0 {
				speakers = env.cfg.Pipeline.SpeakerCount
			}

			controller, err := newController(env, speakers)
			if err != nil {
				return err
			}

			script, err := controller.GenerateScript(cmd.Context(), concept, linkArgs)
			if err != nil {
				return fmt.Errorf("failed to generate script: %w", err)
			}

			if output == "" {
				output = filepath.Join(env.cfg.Paths.OutputDir, defaultScript)
			}

			err = writeFile(output, []byte(script))
			if err != nil {
				return err
			}

			env.log.Info("Script written to %s", output)
			fmt.Fprintf(cmd.OutOrStdout(), "Script written to %s\n", output)

			return nil
		},
	}

	cmd.Flags().StringVar(&concept, flagConcept, "", flagConceptDesc)
	cmd.Flags().StringArrayVar(&linkArgs, flagLink, nil, flagLinkDesc)
	cmd.Flags().IntVar(&speakers, flagSpeakers, 0, flagSpeakerDesc)
	cmd.Flags().StringVar(&output, flagOutput, "", flagOutputDesc)
	_ = cmd.MarkFlagRequired(flagConcept)

	return cmd
}

func newVoicesCmd() *cobra.Command {
	var (
		speakers int
		output   string
	)

	cmd := &cobra.Command{
		Use:   "voices [transcript-file]",
		Short: "Generate one audio file per avatar slot from a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf(errFailedToReadFile, args[0], err)
			}

			env, err := loadFromFlags(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			if speakers <= 0 {
				speakers = env.cfg.Pipeline.SpeakerCount
			}

			controller, err := newController(env, speakers)
			if err != nil {
				return err
			}

			controller.SetScript(string(data))

			for slot := range speakers {
				configErr := controller.ConfigureVoice(slot, env.cfg.Pipeline.Voice(slot))
				if configErr != nil {
					return fmt.Errorf("failed to configure slot %d: %w", slot+1, configErr)
				}
			}

			for _, failure := range controller.GenerateAllVoices(cmd.Context()) {
				env.log.Warn("%v", failure)
				fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", failure)
			}

			if output == "" {
				output = env.cfg.Paths.OutputDir
			}

			written, err := writeAudioFiles(output, controller)
			if err != nil {
				return err
			}

			for _, path := range written {
				fmt.Fprintf(cmd.OutOrStdout(), "Generated: %s\n", path)
			}

			if len(written) == 0 {
				return errNoVoices
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&speakers, flagSpeakers, 0, flagSpeakerDesc)
	cmd.Flags().StringVar(&output, flagOutput, "", flagOutputDesc)

	return cmd
}

// writeAudioFiles saves every slot holding decoded audio as speaker-N.<ext> in dir.
func writeAudioFiles(dir string, controller *pipeline.Controller) ([]string, error) {
	err := os.MkdirAll(dir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written []string

	for slot := range controller.SlotCount() {
		handle, handleErr := controller.AudioHandle(slot)
		if handleErr != nil || handle == nil || !handle.Decoded() {
			continue
		}

		path := filepath.Join(dir, fmt.Sprintf("%s%d%s", audioFilePrefix, slot+1, handle.Format().Extension()))

		writeErr := writeFile(path, handle.Data)
		if writeErr != nil {
			return written, writeErr
		}

		written = append(written, path)
	}

	return written, nil
}

func newLinksCmd() *cobra.Command {
	var analyze bool

	cmd := &cobra.Command{
		Use:   "links [url...]",
		Short: "Digest reference links into script context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !analyze {
				digests := links.NewDigester(nil).Digest(cmd.Context(), args)
				fmt.Fprintln(cmd.OutOrStdout(), links.Format(digests))

				return nil
			}

			env, err := loadFromFlags(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			set := services.NewSet(env.cfg.Services)

			resp, err := set.Analysis.AnalyzeLinks(cmd.Context(), analysisRequest(args))
			if err != nil {
				return fmt.Errorf("failed to analyze links: %w", err)
			}

			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().BoolVar(&analyze, "analyze", false, "Ask the analysis service for an enhanced concept")

	return cmd
}

func analysisRequest(linkArgs []string) core.LinkAnalysisRequest {
	return core.LinkAnalysisRequest{Links: linkArgs, Concept: "", Duration: ""}
}

func newSubmitCmd() *cobra.Command {
	var (
		concept    string
		scriptFile string
		linkArgs   []string
		images     []string
		profiles   []string
		videos     bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a podcast job to the podcast-service over NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			job, err := buildJob(concept, scriptFile, linkArgs)
			if err != nil {
				return err
			}

			job.Profiles, err = parseProfiles(profiles)
			if err != nil {
				return err
			}

			job.Images = images
			job.GenerateVideos = videos

			env, err := loadFromFlags(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			result, err := submitJob(cmd.Context(), env.cfg.NATS.URL, env.cfg.NATS.JobSubject, job)
			if err != nil {
				return err
			}

			env.log.Info("Job %s finished with status %s", job.Header.WorkflowID, result.Status)

			encodeErr := writeJSON(cmd.OutOrStdout(), result)
			if encodeErr != nil {
				return encodeErr
			}

			if result.Status == worker.StatusFailed {
				return fmt.Errorf("%w: %s", errJobFailed, result.Error)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&concept, flagConcept, "", flagConceptDesc)
	cmd.Flags().StringVar(&scriptFile, flagScriptFile, "", flagScriptDesc)
	cmd.Flags().StringArrayVar(&linkArgs, flagLink, nil, flagLinkDesc)
	cmd.Flags().StringArrayVar(&images, "image", nil, "Portrait per slot, in slot order (repeatable)")
	cmd.Flags().StringArrayVar(&profiles, "profile", nil,
		"Avatar profile per slot as name[,gender[,description]], in slot order (repeatable)")
	cmd.Flags().BoolVar(&videos, "videos", false, "Also render an avatar video for every voiced slot")

	return cmd
}

// buildJob validates the submit flags and assembles the job event.
func buildJob(concept, scriptFile string, linkArgs []string) (*worker.PodcastJobEvent, error) {
	concept = strings.TrimSpace(concept)

	if concept == "" && scriptFile == "" {
		return nil, errNeedsInput
	}

	if concept != "" && scriptFile != "" {
		return nil, errBothInputs
	}

	var script string

	if scriptFile != "" {
		data, err := os.ReadFile(scriptFile)
		if err != nil {
			return nil, fmt.Errorf(errFailedToReadFile, scriptFile, err)
		}

		script = string(data)
	}

	return &worker.PodcastJobEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		Concept:        concept,
		Links:          linkArgs,
		Script:         script,
		Voices:         nil,
		Profiles:       nil,
		Images:         nil,
		GenerateVideos: false,
	}, nil
}

// parseProfiles turns name[,gender[,description]] flags into slot profiles.
func parseProfiles(values []string) ([]pipeline.Profile, error) {
	const profileFields = 3

	profiles := make([]pipeline.Profile, 0, len(values))

	for _, value := range values {
		fields := strings.SplitN(value, ",", profileFields)
		for len(fields) < profileFields {
			fields = append(fields, "")
		}

		gender := core.Gender(strings.ToLower(strings.TrimSpace(fields[1])))
		if gender != "" && gender != core.GenderMale && gender != core.GenderFemale {
			return nil, fmt.Errorf("%w: %q", errInvalidGender, fields[1])
		}

		profiles = append(profiles, pipeline.Profile{
			Name:        strings.TrimSpace(fields[0]),
			Gender:      gender,
			Description: strings.TrimSpace(fields[2]),
		})
	}

	return profiles, nil
}

// submitJob sends job as a NATS request and waits for the worker's reply.
func submitJob(
	ctx context.Context,
	url, subject string,
	job *worker.PodcastJobEvent,
) (*worker.PodcastResultEvent, error) {
	natsConnection, err := nats.Connect(url, nats.Name("podcast-client"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	defer natsConnection.Close()

	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	msg, err := natsConnection.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("job request failed: %w", err)
	}

	var result worker.PodcastResultEvent

	err = json.Unmarshal(msg.Data, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
	}

	return &result, nil
}

func loadFromFlags(cmd *cobra.Command) (*environment, error) {
	verbose, err := cmd.Flags().GetBool(flagVerbose)
	if err != nil {
		return nil, fmt.Errorf("failed to read --%s: %w", flagVerbose, err)
	}

	return loadEnvironment(verbose)
}

func newController(env *environment, speakers int) (*pipeline.Controller, error) {
	return newStoredController(env, speakers, nil, nil)
}

// newStoredController builds a controller whose audio goes to store and whose avatars go to sink.
func newStoredController(
	env *environment,
	speakers int,
	store core.ObjectStore,
	sink pipeline.AvatarSink,
) (*pipeline.Controller, error) {
	if speakers <= 0 {
		return nil, errInvalidSpeaker
	}

	set := services.NewSet(env.cfg.Services)

	return pipeline.NewController(pipeline.Services{
		Script: set.Script,
		Voice:  set.Voice,
		Image:  set.Image,
		Video:  set.Video,
	}, pipeline.Options{
		SpeakerCount:         speakers,
		DefaultModelID:       env.cfg.Pipeline.DefaultModelID,
		VideoDurationSeconds: env.cfg.Pipeline.VideoDurationSeconds,
		ExclusivePlayback:    env.cfg.Pipeline.ExclusivePlayback,
		NormalizeText:        env.cfg.Pipeline.NormalizeText,
		EmotionTags:          env.cfg.Pipeline.Emotions,
		MovementTags:         env.cfg.Pipeline.Movements,
		Store:                store,
		Recorder:             nil,
		Sink:                 sink,
		Clock:                nil,
	}, env.log)
}

func writeFile(path string, data []byte) error {
	err := os.MkdirAll(filepath.Dir(path), dirPermissions)
	if err != nil {
		return fmt.Errorf(errFailedToWriteFile, path, err)
	}

	err = os.WriteFile(path, data, filePerms)
	if err != nil {
		return fmt.Errorf(errFailedToWriteFile, path, err)
	}

	return nil
}
