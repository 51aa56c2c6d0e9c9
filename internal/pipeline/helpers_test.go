// Package pipeline_test tests the avatar generation pipeline controller.
package pipeline_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/podcast-service/internal/core"
	"github.com/book-expert/podcast-service/internal/pipeline"
)

const (
	testScript = "Avatar 1: Welcome to the show.\n" +
		"Avatar 2: Glad to be here.\n" +
		"Avatar 3: Me too.\n" +
		"Avatar 1: Let's begin."
	testModelID  = "default-model"
	testImageRef = "https://images.example/host.png"
	testVideoRef = "https://videos.example/clip.mp4"
)

var (
	errMockVoice = errors.New("mock voice error")
	errMockVideo = errors.New("mock video error")
	errMockImage = errors.New("mock image error")
	errMockStore = errors.New("mock store error")

	testAudioBytes   = []byte("ID3-fake-mp3-audio")
	testAudioContent = base64.StdEncoding.EncodeToString(testAudioBytes)
)

// mockVoiceService records requests and fails for configured voice ids.
type mockVoiceService struct {
	mu        sync.Mutex
	requests  []core.VoiceRequest
	failFor   map[string]bool
	inFlight  int
	maxFlight int
	// block, when set, holds every request until it is closed or the context ends.
	block   chan struct{}
	arrived chan struct{}
}

func newMockVoiceService() *mockVoiceService {
	return &mockVoiceService{
		mu:        sync.Mutex{},
		requests:  nil,
		failFor:   map[string]bool{},
		inFlight:  0,
		maxFlight: 0,
		block:     nil,
		arrived:   make(chan struct{}, 16),
	}
}

func (m *mockVoiceService) Synthesize(ctx context.Context, req core.VoiceRequest) (*core.VoiceResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.inFlight++
	m.maxFlight = max(m.maxFlight, m.inFlight)
	fail := m.failFor[req.VoiceID]
	block := m.block
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	select {
	case m.arrived <- struct{}{}:
	default:
	}

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail {
		return nil, errMockVoice
	}

	return &core.VoiceResponse{AudioContent: testAudioContent, MimeType: "audio/mpeg"}, nil
}

func (m *mockVoiceService) calls() []core.VoiceRequest {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]core.VoiceRequest(nil), m.requests...)
}

// gate holds service calls until block is closed or the context ends.
type gate struct {
	block   chan struct{}
	arrived chan struct{}
}

func newGate() gate {
	return gate{block: nil, arrived: make(chan struct{}, 16)}
}

func (g gate) pass(ctx context.Context, block chan struct{}) error {
	select {
	case g.arrived <- struct{}{}:
	default:
	}

	if block == nil {
		return nil
	}

	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mockImageService struct {
	mu      sync.Mutex
	prompts []string
	fail    bool
	gate    gate
}

func newMockImageService() *mockImageService {
	return &mockImageService{mu: sync.Mutex{}, prompts: nil, fail: false, gate: newGate()}
}

func (m *mockImageService) GenerateImage(ctx context.Context, req core.ImageRequest) (*core.ImageResponse, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, req.Prompt)
	fail := m.fail
	block := m.gate.block
	m.mu.Unlock()

	err := m.gate.pass(ctx, block)
	if err != nil {
		return nil, err
	}

	if fail {
		return nil, errMockImage
	}

	return &core.ImageResponse{ImageURL: testImageRef, Model: "gen4", RunwayID: "rw-1"}, nil
}

func (m *mockImageService) hold() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gate.block = make(chan struct{})

	return m.gate.block
}

type mockVideoService struct {
	mu       sync.Mutex
	requests []core.VideoRequest
	fail     bool
	gate     gate
}

func newMockVideoService() *mockVideoService {
	return &mockVideoService{mu: sync.Mutex{}, requests: nil, fail: false, gate: newGate()}
}

func (m *mockVideoService) GenerateVideo(ctx context.Context, req core.VideoRequest) (*core.VideoResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fail := m.fail
	block := m.gate.block
	m.mu.Unlock()

	err := m.gate.pass(ctx, block)
	if err != nil {
		return nil, err
	}

	if fail {
		return nil, errMockVideo
	}

	return &core.VideoResponse{VideoRef: testVideoRef, Error: ""}, nil
}

func (m *mockVideoService) setFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fail = fail
}

func (m *mockVideoService) hold() chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gate.block = make(chan struct{})

	return m.gate.block
}

type mockScriptService struct {
	script string
	err    error
	last   core.ScriptRequest
}

func (m *mockScriptService) GenerateScript(_ context.Context, req core.ScriptRequest) (string, error) {
	m.last = req

	return m.script, m.err
}

type mockStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    bool
}

func (m *mockStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.objects[key], nil
}

func (m *mockStore) Upload(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return errMockStore
	}

	m.objects[key] = data

	return nil
}

func (m *mockStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)

	return nil
}

func (m *mockStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}

	return keys
}

type mockSink struct {
	avatars []core.GeneratedAvatar
}

func (m *mockSink) Add(avatar core.GeneratedAvatar) {
	m.avatars = append(m.avatars, avatar)
}

type fixture struct {
	controller *pipeline.Controller
	voice      *mockVoiceService
	image      *mockImageService
	video      *mockVideoService
	script     *mockScriptService
	sink       *mockSink
}

func newFixture(t *testing.T, speakers int, mutate func(*pipeline.Options)) *fixture {
	t.Helper()

	log, err := logger.New(t.TempDir(), "pipeline-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	f := &fixture{
		controller: nil,
		voice:      newMockVoiceService(),
		image:      newMockImageService(),
		video:      newMockVideoService(),
		script:     &mockScriptService{script: testScript, err: nil, last: core.ScriptRequest{}},
		sink:       &mockSink{avatars: nil},
	}

	opts := pipeline.Options{
		SpeakerCount:         speakers,
		DefaultModelID:       testModelID,
		VideoDurationSeconds: 12,
		ExclusivePlayback:    false,
		NormalizeText:        false,
		EmotionTags:          []string{"happy"},
		MovementTags:         []string{"nod"},
		Store:                nil,
		Recorder:             nil,
		Sink:                 f.sink,
		Clock:                nil,
	}
	if mutate != nil {
		mutate(&opts)
	}

	f.controller, err = pipeline.NewController(pipeline.Services{
		Script: f.script,
		Voice:  f.voice,
		Image:  f.image,
		Video:  f.video,
	}, opts, log)
	require.NoError(t, err)

	return f
}

// configureVoices gives slot i the voice "voice-i".
func (f *fixture) configureVoices(t *testing.T) {
	t.Helper()

	for slot := range f.controller.SlotCount() {
		require.NoError(t, f.controller.ConfigureVoice(slot, core.AvatarVoiceConfig{
			VoiceID:       voiceID(slot),
			ModelID:       "",
			CustomVoiceID: "",
		}))
	}
}

func voiceID(slot int) string {
	return "voice-" + string(rune('0'+slot))
}

func (f *fixture) state(t *testing.T, slot int) pipeline.State {
	t.Helper()

	snapshot, err := f.controller.Snapshot(slot)
	require.NoError(t, err)

	return snapshot.State
}

// readyVideo drives slot 0 all the way to VideoReady.
func (f *fixture) readyVideo(t *testing.T) *core.GeneratedAvatar {
	t.Helper()

	ctx := context.Background()

	require.NoError(t, f.controller.GenerateVoice(ctx, 0))
	require.NoError(t, f.controller.SelectImage(0, testImageRef))

	avatar, err := f.controller.GenerateVideo(ctx, 0)
	require.NoError(t, err)

	return avatar
}

func waitArrived(t *testing.T, voice *mockVoiceService) {
	t.Helper()

	waitFor(t, voice.arrived, "voice")
}

func waitFor(t *testing.T, arrived chan struct{}, stage string) {
	t.Helper()

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatalf("%s request never reached the service", stage)
	}
}

func containsAll(text string, parts ...string) bool {
	for _, part := range parts {
		if !strings.Contains(text, part) {
			return false
		}
	}

	return true
}
