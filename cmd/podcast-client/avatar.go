package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/library"
	"github.com/book-expert/podcast-service/internal/live"
	"github.com/book-expert/podcast-service/internal/objectstore"
	"github.com/book-expert/podcast-service/internal/pipeline"
)

var (
	errInvalidSlot   = errors.New("--slot must be positive")
	errNotSelected   = errors.New("avatar is not selected for live")
	errLibraryClosed = errors.New("library connection is closed")
)

// avatarRequest is everything needed to turn one slot of a transcript into an avatar.
type avatarRequest struct {
	transcript string
	slot       int
	voice      core.AvatarVoiceConfig
	profile    pipeline.Profile
	imageRef   string
	prompt     string
}

// liveRequest describes a scripted live session over the library.
type liveRequest struct {
	selectIDs []string
	removeIDs []string
	activate  bool
	speakers  []string
}

// storedLibrary is a library bound to its NATS object store.
type storedLibrary struct {
	natsConnection *nats.Conn
	store          *objectstore.NatsObjectStore
	library        *library.Library
}

func (s *storedLibrary) Close() {
	if s.natsConnection != nil {
		s.natsConnection.Close()
		s.natsConnection = nil
	}
}

// openLibrary connects to NATS, binds the object store bucket and loads the library document.
func openLibrary(ctx context.Context, url, bucket, key string) (*storedLibrary, error) {
	natsConnection, err := nats.Connect(url, nats.Name("podcast-client"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, bucket)
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to open object store: %w", err)
	}

	avatarLibrary := library.New(store, key)

	err = avatarLibrary.Load(ctx)
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to load avatar library: %w", err)
	}

	return &storedLibrary{natsConnection: natsConnection, store: store, library: avatarLibrary}, nil
}

func (s *storedLibrary) save(ctx context.Context) error {
	if s.natsConnection == nil {
		return errLibraryClosed
	}

	err := s.library.Save(ctx)
	if err != nil {
		return fmt.Errorf("failed to save avatar library: %w", err)
	}

	return nil
}

func newAvatarCmd() *cobra.Command {
	var (
		slot        int
		name        string
		gender      string
		description string
		imageRef    string
		prompt      string
		goLive      bool
	)

	cmd := &cobra.Command{
		Use:   "avatar [transcript-file]",
		Short: "Generate the voice, portrait and video of one slot and add the avatar to the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if slot <= 0 {
				return errInvalidSlot
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf(errFailedToReadFile, args[0], err)
			}

			env, err := loadFromFlags(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			stored, err := openLibrary(cmd.Context(), env.cfg.NATS.URL, env.cfg.NATS.ObjectStoreBucket,
				env.cfg.NATS.LibraryKey)
			if err != nil {
				return err
			}
			defer stored.Close()

			controller, err := newStoredController(env, max(slot, env.cfg.Pipeline.SpeakerCount),
				stored.store, stored.library)
			if err != nil {
				return err
			}

			avatar, err := produceAvatar(cmd.Context(), controller, avatarRequest{
				transcript: string(data),
				slot:       slot - 1,
				voice:      env.cfg.Pipeline.Voice(slot - 1),
				profile:    pipeline.Profile{Name: name, Gender: core.Gender(gender), Description: description},
				imageRef:   imageRef,
				prompt:     prompt,
			})
			if err != nil {
				return err
			}

			if goLive {
				err = stored.library.SelectForLive(avatar.ID)
				if err != nil {
					return fmt.Errorf("failed to select avatar for live: %w", err)
				}
			}

			err = stored.save(cmd.Context())
			if err != nil {
				return err
			}

			env.log.Info("Avatar %s saved to bucket %s", avatar.ID, stored.store.Bucket())

			return writeJSON(cmd.OutOrStdout(), avatar)
		},
	}

	cmd.Flags().IntVar(&slot, "slot", 1, "Avatar slot to render, starting at 1")
	cmd.Flags().StringVar(&name, "name", "", "Avatar name")
	cmd.Flags().StringVar(&gender, "gender", "", "Avatar gender (male or female)")
	cmd.Flags().StringVar(&description, "description", "", "Avatar description used in the portrait prompt")
	cmd.Flags().StringVar(&imageRef, "image", "", "Use this portrait instead of generating one")
	cmd.Flags().StringVar(&prompt, "prompt", "", "Portrait prompt (defaults to one built from the profile)")
	cmd.Flags().BoolVar(&goLive, "live", false, "Also select the new avatar for live sessions")

	return cmd
}

// produceAvatar runs one slot through voice, image and video generation.
func produceAvatar(
	ctx context.Context,
	controller *pipeline.Controller,
	req avatarRequest,
) (*core.GeneratedAvatar, error) {
	controller.SetScript(req.transcript)

	err := controller.ConfigureVoice(req.slot, req.voice)
	if err != nil {
		return nil, fmt.Errorf("failed to configure voice: %w", err)
	}

	err = controller.ConfigureAvatar(req.slot, req.profile)
	if err != nil {
		return nil, fmt.Errorf("failed to configure avatar: %w", err)
	}

	err = controller.GenerateVoice(ctx, req.slot)
	if err != nil {
		return nil, fmt.Errorf("failed to generate voice: %w", err)
	}

	if req.imageRef != "" {
		err = controller.SelectImage(req.slot, req.imageRef)
	} else {
		_, err = controller.GenerateImage(ctx, req.slot, req.prompt)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to prepare portrait: %w", err)
	}

	avatar, err := controller.GenerateVideo(ctx, req.slot)
	if err != nil {
		return nil, fmt.Errorf("failed to generate video: %w", err)
	}

	return avatar, nil
}

func newLiveCmd() *cobra.Command {
	var req liveRequest

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Manage the live selection and run a live session over the avatar library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadFromFlags(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			stored, err := openLibrary(cmd.Context(), env.cfg.NATS.URL, env.cfg.NATS.ObjectStoreBucket,
				env.cfg.NATS.LibraryKey)
			if err != nil {
				return err
			}
			defer stored.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Library in bucket %s\n", stored.store.Bucket())

			err = runLive(cmd.Context(), cmd.OutOrStdout(), stored.library, req, env.log)
			if err != nil {
				return err
			}

			return stored.save(cmd.Context())
		},
	}

	cmd.Flags().StringArrayVar(&req.selectIDs, "select", nil, "Avatar id to add to the live selection (repeatable)")
	cmd.Flags().StringArrayVar(&req.removeIDs, "remove", nil, "Avatar id to drop from the live selection (repeatable)")
	cmd.Flags().BoolVar(&req.activate, "avatars", false, "Turn the avatars on once live")
	cmd.Flags().StringArrayVar(&req.speakers, "speaker", nil, "Hand the floor to this speaker id (repeatable, in order)")

	return cmd
}

// runLive applies the selection changes, lists the library and walks a live session through
// the requested speakers.
func runLive(
	ctx context.Context,
	out io.Writer,
	avatarLibrary *library.Library,
	req liveRequest,
	log *logger.Logger,
) error {
	for _, id := range req.selectIDs {
		err := avatarLibrary.SelectForLive(id)
		if err != nil {
			return fmt.Errorf("failed to select %s: %w", id, err)
		}
	}

	for _, id := range req.removeIDs {
		if !avatarLibrary.RemoveFromLive(id) {
			return fmt.Errorf("%w: %s", errNotSelected, id)
		}
	}

	for _, avatar := range avatarLibrary.Avatars() {
		marker := " "
		if avatarLibrary.IsSelected(avatar.ID) {
			marker = "*"
		}

		fmt.Fprintf(out, "%s %s %s\n", marker, avatar.ID, avatar.Name)
	}

	session := live.NewSession(avatarLibrary, logCapture{log: log}, nil)

	err := session.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to go live: %w", err)
	}

	sessionErr := driveSession(session, req)

	fmt.Fprintf(out, "Speaker: %s\n", session.Status().Speaker)

	stopErr := session.Stop()
	if sessionErr != nil {
		return sessionErr
	}

	if stopErr != nil {
		return fmt.Errorf("failed to end live session: %w", stopErr)
	}

	return nil
}

func driveSession(session *live.Session, req liveRequest) error {
	if req.activate {
		_, err := session.ToggleAvatars()
		if err != nil {
			return fmt.Errorf("failed to activate avatars: %w", err)
		}
	}

	for _, speaker := range req.speakers {
		err := session.SetSpeaker(speaker)
		if err != nil {
			return fmt.Errorf("failed to hand the floor to %s: %w", speaker, err)
		}
	}

	return nil
}

// logCapture stands in for the host's camera and microphone on the command line.
type logCapture struct {
	log *logger.Logger
}

func (c logCapture) Start(_ context.Context) error {
	c.log.Info("Live capture started")

	return nil
}

func (c logCapture) Stop() error {
	c.log.Info("Live capture stopped")

	return nil
}

func writeJSON(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(value)
	if err != nil {
		return fmt.Errorf("failed to print result: %w", err)
	}

	return nil
}
