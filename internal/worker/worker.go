// Package worker provides a NATS worker that runs podcast jobs through the generation pipeline.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/links"
	"github.com/book-expert/podcast-service/internal/pipeline"
)

// DefaultJobTimeout bounds one job from script to the last voice.
const DefaultJobTimeout = 10 * time.Minute

// Job statuses reported in PodcastResultEvent.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

const referenceHeading = "\n\nReference material:\n"

var (
	// ErrSubjectEmpty indicates that no subject was given to listen on.
	ErrSubjectEmpty = errors.New("subject cannot be empty")
	// ErrNoControllerFactory indicates a worker without a way to build controllers.
	ErrNoControllerFactory = errors.New("controller factory cannot be nil")
	// ErrEmptyJob indicates a job with neither a concept nor a script.
	ErrEmptyJob = errors.New("job needs a concept or a script")
)

// PodcastJobEvent asks the worker to produce voices for a podcast.
type PodcastJobEvent struct {
	Header  events.EventHeader `json:"header"`
	Concept string             `json:"concept,omitempty"`
	Links   []string           `json:"links,omitempty"`
	// Script, when set, is used as is and no script is generated.
	Script string `json:"script,omitempty"`
	// Voices overrides the configured voice per slot; empty entries keep the default.
	Voices   []core.AvatarVoiceConfig `json:"voices,omitempty"`
	Profiles []pipeline.Profile       `json:"profiles,omitempty"`
	// Images selects a portrait per slot; an empty entry has one generated from the profile.
	Images []string `json:"images,omitempty"`
	// GenerateVideos renders an avatar clip for every slot whose voice is ready.
	GenerateVideos bool `json:"generateVideos,omitempty"`
}

// SlotResult is the outcome of one slot.
type SlotResult struct {
	Slot     int    `json:"slot"`
	State    string `json:"state"`
	VoiceID  string `json:"voiceId,omitempty"`
	AudioRef string `json:"audioRef,omitempty"`
	ImageRef string `json:"imageRef,omitempty"`
	VideoRef string `json:"videoRef,omitempty"`
	AvatarID string `json:"avatarId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PodcastResultEvent is the reply to a PodcastJobEvent.
type PodcastResultEvent struct {
	Header events.EventHeader `json:"header"`
	Status string             `json:"status"`
	Script string             `json:"script,omitempty"`
	Slots  []SlotResult       `json:"slots,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// ControllerFactory builds a fresh controller for every job.
type ControllerFactory func() (*pipeline.Controller, error)

// JobRecorder counts handled jobs by status.
type JobRecorder interface {
	JobHandled(status string)
}

// NatsWorker listens for podcast jobs on a NATS subject and replies with their results.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	newController  ControllerFactory
	voices         []core.AvatarVoiceConfig
	digester       *links.Digester
	recorder       JobRecorder
	jobTimeout     time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. voices are the per-slot defaults;
// digester and recorder may be nil.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	newController ControllerFactory,
	voices []core.AvatarVoiceConfig,
	digester *links.Digester,
	recorder JobRecorder,
	log *logger.Logger,
) (*NatsWorker, error) {
	if subject == "" {
		return nil, ErrSubjectEmpty
	}

	if newController == nil {
		return nil, ErrNoControllerFactory
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		newController:  newController,
		voices:         voices,
		digester:       digester,
		recorder:       recorder,
		jobTimeout:     DefaultJobTimeout,
		log:            log,
	}, nil
}

// SetJobTimeout changes the per-job deadline.
func (w *NatsWorker) SetJobTimeout(timeout time.Duration) {
	w.jobTimeout = timeout
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info("Listening for podcast jobs on subject: %s", w.subject)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(parent context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(parent, w.jobTimeout)
	defer cancel()

	var result *PodcastResultEvent

	event, err := parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse podcast job: %v", err)

		result = failedResult(events.EventHeader{}, err)
	} else {
		result = w.processJob(ctx, event)
	}

	if w.recorder != nil {
		w.recorder.JobHandled(result.Status)
	}

	err = publishReplyEvent(msg, result)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", result.Header.WorkflowID, err)
	}
}

// processJob installs or generates the script, configures every slot and generates all voices,
// then the avatar clips when the job asks for them.
func (w *NatsWorker) processJob(ctx context.Context, event *PodcastJobEvent) *PodcastResultEvent {
	workflowID := event.Header.WorkflowID

	if strings.TrimSpace(event.Concept) == "" && strings.TrimSpace(event.Script) == "" {
		w.log.Warn("Rejecting empty podcast job %s", workflowID)

		return failedResult(event.Header, ErrEmptyJob)
	}

	controller, err := w.newController()
	if err != nil {
		return failedResult(event.Header, fmt.Errorf("failed to create pipeline: %w", err))
	}

	script, err := w.installScript(ctx, controller, event)
	if err != nil {
		w.log.Error("Podcast job %s: %v", workflowID, err)

		return failedResult(event.Header, err)
	}

	err = w.configureSlots(controller, event)
	if err != nil {
		return failedResult(event.Header, err)
	}

	failures := controller.GenerateAllVoices(ctx)
	if event.GenerateVideos {
		failures = append(failures, w.generateAvatars(ctx, controller, event.Images)...)
	}

	slots := slotResults(controller.Snapshots())

	status := StatusCompleted
	if len(failures) > 0 {
		status = StatusPartial
		if len(failures) == len(slots) {
			status = StatusFailed
		}
	}

	w.log.Info("Podcast job %s finished: %s (%d of %d slots failed)", workflowID, status, len(failures), len(slots))

	return &PodcastResultEvent{
		Header: event.Header,
		Status: status,
		Script: script,
		Slots:  slots,
		Error:  joinFailures(failures),
	}
}

func (w *NatsWorker) installScript(
	ctx context.Context,
	controller *pipeline.Controller,
	event *PodcastJobEvent,
) (string, error) {
	if strings.TrimSpace(event.Script) != "" {
		controller.SetScript(event.Script)

		return event.Script, nil
	}

	concept := strings.TrimSpace(event.Concept)

	if w.digester != nil && len(event.Links) > 0 {
		notes := links.Format(w.digester.Digest(ctx, event.Links))
		if notes != "" {
			concept += referenceHeading + notes
		}
	}

	script, err := controller.GenerateScript(ctx, concept, event.Links)
	if err != nil {
		return "", fmt.Errorf("script generation failed: %w", err)
	}

	return script, nil
}

func (w *NatsWorker) configureSlots(controller *pipeline.Controller, event *PodcastJobEvent) error {
	for slot := range controller.SlotCount() {
		voice := w.defaultVoice(slot)
		if slot < len(event.Voices) && event.Voices[slot].VoiceID != "" {
			voice = event.Voices[slot]
		}

		err := controller.ConfigureVoice(slot, voice)
		if err != nil {
			return fmt.Errorf("failed to configure voice: %w", err)
		}

		if slot < len(event.Profiles) {
			err = controller.ConfigureAvatar(slot, event.Profiles[slot])
			if err != nil {
				return fmt.Errorf("failed to configure avatar: %w", err)
			}
		}
	}

	return nil
}

// generateAvatars gives every voiced slot an image and renders its clip, one slot at a time.
func (w *NatsWorker) generateAvatars(
	ctx context.Context,
	controller *pipeline.Controller,
	images []string,
) []*pipeline.SlotError {
	var failures []*pipeline.SlotError

	for _, snapshot := range controller.Snapshots() {
		if snapshot.State != pipeline.VoiceReady {
			continue
		}

		err := w.generateAvatar(ctx, controller, snapshot.Slot, imageFor(images, snapshot.Slot))
		if err != nil {
			failures = append(failures, asSlotError(snapshot.Slot, err))
		}
	}

	return failures
}

func (w *NatsWorker) generateAvatar(
	ctx context.Context,
	controller *pipeline.Controller,
	slot int,
	imageRef string,
) error {
	var err error

	if imageRef != "" {
		err = controller.SelectImage(slot, imageRef)
	} else {
		_, err = controller.GenerateImage(ctx, slot, "")
	}

	if err != nil {
		return err
	}

	avatar, err := controller.GenerateVideo(ctx, slot)
	if err != nil {
		return err
	}

	w.log.Info("Slot %d: avatar %s ready", slot, avatar.ID)

	return nil
}

func imageFor(images []string, slot int) string {
	if slot < len(images) {
		return strings.TrimSpace(images[slot])
	}

	return ""
}

func asSlotError(slot int, err error) *pipeline.SlotError {
	var slotErr *pipeline.SlotError
	if errors.As(err, &slotErr) {
		return slotErr
	}

	return &pipeline.SlotError{Slot: slot, Stage: pipeline.StageVideo, Err: err}
}

func (w *NatsWorker) defaultVoice(slot int) core.AvatarVoiceConfig {
	if slot < len(w.voices) {
		return w.voices[slot]
	}

	return core.AvatarVoiceConfig{VoiceID: "", ModelID: "", CustomVoiceID: ""}
}

func slotResults(snapshots []pipeline.Snapshot) []SlotResult {
	results := make([]SlotResult, 0, len(snapshots))

	for _, snapshot := range snapshots {
		result := SlotResult{
			Slot:     snapshot.Slot,
			State:    snapshot.State.String(),
			VoiceID:  snapshot.Voice.ResolvedVoiceID(),
			AudioRef: snapshot.AudioRef,
			ImageRef: snapshot.ImageRef,
			VideoRef: snapshot.VideoRef,
			AvatarID: snapshot.AvatarID,
			Error:    "",
		}
		if snapshot.Err != nil {
			result.Error = snapshot.Err.Error()
		}

		results = append(results, result)
	}

	return results
}

func joinFailures(failures []*pipeline.SlotError) string {
	messages := make([]string, 0, len(failures))
	for _, failure := range failures {
		messages = append(messages, failure.Error())
	}

	return strings.Join(messages, "; ")
}

func failedResult(header events.EventHeader, err error) *PodcastResultEvent {
	return &PodcastResultEvent{
		Header: header,
		Status: StatusFailed,
		Script: "",
		Slots:  nil,
		Error:  err.Error(),
	}
}

// publishReplyEvent marshals and responds with the PodcastResultEvent.
func publishReplyEvent(msg *nats.Msg, replyEvent *PodcastResultEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func parseEvent(msg *nats.Msg) (*PodcastJobEvent, error) {
	var event PodcastJobEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	return &event, nil
}
