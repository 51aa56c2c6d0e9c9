package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/pipeline"
	"github.com/book-expert/podcast-service/internal/services"
	"github.com/book-expert/podcast-service/internal/worker"
)

const (
	testTranscript = "Avatar 1: Welcome to the show.\nAvatar 2: Glad to be here.\nAvatar 1: Let's begin."
	testSubject    = "podcast.jobs.test"
)

type stubVoiceService struct{}

func (stubVoiceService) Synthesize(_ context.Context, req core.VoiceRequest) (*core.VoiceResponse, error) {
	return &core.VoiceResponse{
		AudioContent: base64.StdEncoding.EncodeToString([]byte("ID3" + req.VoiceID)),
		MimeType:     "audio/mpeg",
	}, nil
}

func TestSegmentCommand(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "script.txt")
	require.NoError(t, os.WriteFile(path, []byte(testTranscript), filePerms))

	var out bytes.Buffer

	rootCmd := newRootCmd()
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"segment", path, "--speakers", "3"})

	require.NoError(t, rootCmd.Execute())

	printed := out.String()
	assert.Contains(t, printed, "Found 2 speaker(s) in 3 block(s)")
	assert.Contains(t, printed, "Slot 1:\nWelcome to the show. Let's begin.\n")
	assert.Contains(t, printed, "Slot 2:\nGlad to be here.\n")
	assert.Contains(t, printed, "Slot 3:\n(no text)\n")
}

func TestSegmentCommand_MissingFile(t *testing.T) {
	t.Parallel()

	rootCmd := newRootCmd()
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"segment", filepath.Join(t.TempDir(), "missing.txt")})

	require.Error(t, rootCmd.Execute())
}

func TestWriteHealth(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	err := writeHealth(&out, []services.HealthResult{
		{Name: "script", URL: "http://script.local", Err: nil},
		{Name: "voice", URL: "http://voice.local", Err: errors.New("connection refused")},
	})

	require.ErrorIs(t, err, errUnhealthy)
	assert.Contains(t, err.Error(), "1 of 2")
	assert.Contains(t, out.String(), "script    http://script.local healthy")
	assert.Contains(t, out.String(), "voice     http://voice.local unhealthy: connection refused")
}

func TestBuildJob(t *testing.T) {
	t.Parallel()

	scriptPath := filepath.Join(t.TempDir(), "script.txt")
	require.NoError(t, os.WriteFile(scriptPath, []byte(testTranscript), filePerms))

	_, err := buildJob("  ", "", nil)
	require.ErrorIs(t, err, errNeedsInput)

	_, err = buildJob("concept", scriptPath, nil)
	require.ErrorIs(t, err, errBothInputs)

	job, err := buildJob("", scriptPath, nil)
	require.NoError(t, err)
	assert.Equal(t, testTranscript, job.Script)
	assert.NotEmpty(t, job.Header.WorkflowID)
	assert.NotEqual(t, job.Header.WorkflowID, job.Header.EventID)

	job, err = buildJob(" Urban farming ", "", []string{"https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Urban farming", job.Concept)
	assert.Equal(t, []string{"https://example.com"}, job.Links)
}

func TestParseProfiles(t *testing.T) {
	t.Parallel()

	profiles, err := parseProfiles([]string{"Marko, Male", "Ana,female,Calm, curious host", ""})
	require.NoError(t, err)
	assert.Equal(t, []pipeline.Profile{
		{Name: "Marko", Gender: core.GenderMale, Description: ""},
		{Name: "Ana", Gender: core.GenderFemale, Description: "Calm, curious host"},
		{Name: "", Gender: "", Description: ""},
	}, profiles)

	_, err = parseProfiles([]string{"Robo,android"})
	require.ErrorIs(t, err, errInvalidGender)
}

func TestWriteAudioFiles(t *testing.T) {
	t.Parallel()

	log, err := logger.New(t.TempDir(), "client-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	controller, err := pipeline.NewController(pipeline.Services{
		Script: nil,
		Voice:  stubVoiceService{},
		Image:  nil,
		Video:  nil,
	}, pipeline.Options{
		SpeakerCount:         3,
		DefaultModelID:       "",
		VideoDurationSeconds: 0,
		ExclusivePlayback:    false,
		NormalizeText:        false,
		EmotionTags:          nil,
		MovementTags:         nil,
		Store:                nil,
		Recorder:             nil,
		Sink:                 nil,
		Clock:                nil,
	}, log)
	require.NoError(t, err)

	controller.SetScript(testTranscript)

	for slot := range 2 {
		require.NoError(t, controller.ConfigureVoice(slot, core.AvatarVoiceConfig{
			VoiceID:       "voice",
			ModelID:       "",
			CustomVoiceID: "",
		}))
	}

	require.NoError(t, controller.GenerateVoice(context.Background(), 0))
	require.NoError(t, controller.GenerateVoice(context.Background(), 1))

	dir := filepath.Join(t.TempDir(), "out")

	written, err := writeAudioFiles(dir, controller)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "speaker-1.mp3"),
		filepath.Join(dir, "speaker-2.mp3"),
	}, written)

	data, err := os.ReadFile(written[0])
	require.NoError(t, err)
	assert.Equal(t, "ID3voice", string(data))
}

func TestSubmitJob(t *testing.T) {
	t.Parallel()

	opts := test.DefaultTestOptions
	opts.Port = -1
	server := test.RunServer(&opts)
	t.Cleanup(server.Shutdown)

	responder, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(responder.Close)

	_, err = responder.Subscribe(testSubject, func(msg *nats.Msg) {
		var job worker.PodcastJobEvent
		if json.Unmarshal(msg.Data, &job) != nil {
			return
		}

		reply, _ := json.Marshal(worker.PodcastResultEvent{
			Header: job.Header,
			Status: worker.StatusCompleted,
			Script: job.Script,
			Slots:  nil,
			Error:  "",
		})
		_ = msg.Respond(reply)
	})
	require.NoError(t, err)
	require.NoError(t, responder.Flush())

	job, err := buildJob("Urban farming", "", nil)
	require.NoError(t, err)

	job.Script = testTranscript

	result, err := submitJob(context.Background(), server.ClientURL(), testSubject, job)
	require.NoError(t, err)
	assert.Equal(t, worker.StatusCompleted, result.Status)
	assert.Equal(t, testTranscript, result.Script)
	assert.Equal(t, job.Header.WorkflowID, result.Header.WorkflowID)
}
