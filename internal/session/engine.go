package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/careerpal/interview-gateway/internal/audio"
	"github.com/careerpal/interview-gateway/internal/capture"
	"github.com/careerpal/interview-gateway/internal/observability"
	"github.com/careerpal/interview-gateway/internal/playback"
)

// EngineConfig tunes one engine instance.
type EngineConfig struct {
	FrameInterval    time.Duration
	OutputSampleRate int
}

// Engine owns the lifecycle of one interview: connecting, streaming,
// closing. It multiplexes outbound audio chunks and sampled video frames
// onto the transport and demultiplexes inbound audio and transcription.
type Engine struct {
	transport Transport
	capture   *capture.Manager
	scheduler *playback.Scheduler
	analyzer  Analyzer
	archive   Archiver
	metrics   *observability.Metrics
	logger    zerolog.Logger
	cfg       EngineConfig

	onTranscript func(TranscriptEntry)
	onState      func(State)
	onReport     func(*AssessmentReport)

	mu         sync.Mutex
	state      State
	run        uint64
	capCtx     *capture.Context
	conn       Conn
	cancel     context.CancelFunc
	startedAt  time.Time
	transcript []TranscriptEntry
	report     *AssessmentReport

	wg sync.WaitGroup
}

// NewEngine builds an idle engine. Analyzer and archiver may be nil; the
// session then ends without a report or persistence.
func NewEngine(
	transport Transport,
	captureMgr *capture.Manager,
	scheduler *playback.Scheduler,
	analyzer Analyzer,
	archive Archiver,
	metrics *observability.Metrics,
	cfg EngineConfig,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		transport: transport,
		capture:   captureMgr,
		scheduler: scheduler,
		analyzer:  analyzer,
		archive:   archive,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger,
		state:     StateIdle,
	}
}

// OnTranscript registers a callback for each appended transcript entry.
// Must be set before Start.
func (e *Engine) OnTranscript(fn func(TranscriptEntry)) { e.onTranscript = fn }

// OnStateChange registers a callback for state transitions. Must be set
// before Start.
func (e *Engine) OnStateChange(fn func(State)) { e.onState = fn }

// OnReport registers a callback for the post-session report. Must be set
// before Start.
func (e *Engine) OnReport(fn func(*AssessmentReport)) { e.onReport = fn }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Elapsed returns how long the session has been running. Zero when idle.
func (e *Engine) Elapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startedAt.IsZero() {
		return 0
	}
	return time.Since(e.startedAt)
}

// Transcript returns a copy of the transcript accumulated so far.
func (e *Engine) Transcript() []TranscriptEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]TranscriptEntry, len(e.transcript))
	copy(out, e.transcript)
	return out
}

// Report returns the report of the most recently completed session, or nil.
func (e *Engine) Report() *AssessmentReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.report
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
	e.logger.Info().Str("state", s.String()).Msg("session state changed")
	if e.onState != nil {
		e.onState(s)
	}
}

// Start runs the Connecting transition: capture acquisition, then the live
// connection handshake. It returns once the session is Active, or with the
// classified failure without ever reaching Active. Valid only from Idle.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrSessionActive
	}
	e.state = StateConnecting
	e.run++
	e.transcript = nil
	e.report = nil
	e.mu.Unlock()
	if e.onState != nil {
		e.onState(StateConnecting)
	}

	capCtx, err := e.capture.Acquire(ctx)
	if err != nil {
		e.metrics.RecordError("capture_acquire", "session")
		e.setState(StateIdle)
		return fmt.Errorf("capture acquisition failed: %w", err)
	}

	if e.State() != StateConnecting {
		// Stop intervened while capture was being acquired; nothing to dial.
		e.capture.Release(capCtx)
		return ErrSessionStopped
	}

	conn, err := e.transport.Connect(ctx)
	if err != nil {
		e.capture.Release(capCtx)
		e.metrics.RecordError("transport_connect", "session")
		e.setState(StateIdle)
		return fmt.Errorf("live connection failed: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if e.state != StateConnecting {
		// Stop intervened during the handshake. It had nothing to release,
		// so the resources acquired here are torn down right away instead
		// of going Active.
		e.mu.Unlock()
		cancel()
		e.capture.Release(capCtx)
		_ = conn.Close()
		e.logger.Info().Msg("discarding connection established after stop")
		return ErrSessionStopped
	}
	e.capCtx = capCtx
	e.conn = conn
	e.cancel = cancel
	e.startedAt = time.Now()
	e.state = StateActive
	runID := e.run
	e.mu.Unlock()
	if e.onState != nil {
		e.onState(StateActive)
	}
	e.metrics.RecordSessionStart()
	e.logger.Info().Bool("audio_only", capCtx.AudioOnly).Msg("interview session active")

	e.wg.Add(2)
	go e.streamSamples(runCtx, capCtx, conn)
	go e.eventLoop(conn, runID)
	if !capCtx.AudioOnly {
		e.wg.Add(1)
		go e.sampleFrames(runCtx, capCtx, conn)
	}

	return nil
}

// streamSamples forwards encoded microphone chunks as realtime input.
func (e *Engine) streamSamples(ctx context.Context, capCtx *capture.Context, conn Conn) {
	defer e.wg.Done()
	err := e.capture.StreamSamples(ctx, capCtx, func(chunk []float32) {
		encoded := audio.Encode(chunk)
		if sendErr := conn.SendAudio(encoded); sendErr != nil {
			e.logger.Warn().Err(sendErr).Msg("audio send failed")
			return
		}
		e.metrics.RecordAudioBytes("in", int64(len(chunk)*2))
	})
	if err != nil && ctx.Err() == nil {
		e.logger.Error().Err(err).Msg("sample streaming ended")
		e.metrics.RecordError("sample_stream", "session")
	}
}

// sampleFrames forwards periodic JPEG frames as realtime input.
func (e *Engine) sampleFrames(ctx context.Context, capCtx *capture.Context, conn Conn) {
	defer e.wg.Done()
	e.capture.SampleFrames(ctx, capCtx, e.cfg.FrameInterval, func(frame string) {
		if err := conn.SendFrame(frame); err != nil {
			e.logger.Warn().Err(err).Msg("frame send failed")
			return
		}
		e.metrics.RecordFrameSent()
	})
}

// eventLoop demultiplexes inbound events until the connection ends, then
// drives teardown with the closure's error classification. runID scopes the
// teardown to this session: after a stop and restart it must not touch the
// successor.
func (e *Engine) eventLoop(conn Conn, runID uint64) {
	defer e.wg.Done()
	for ev := range conn.Events() {
		switch {
		case ev.OutputTranscription != "":
			e.appendTranscript(TranscriptEntry{Role: RoleInterviewer, Text: ev.OutputTranscription})
		case ev.InputTranscription != "":
			e.appendTranscript(TranscriptEntry{Role: RoleCandidate, Text: ev.InputTranscription})
		case ev.InlineAudio != "":
			e.playInline(ev.InlineAudio)
		}
	}

	err := conn.Err()
	if err != nil {
		e.logger.Error().Err(err).Msg("live connection lost")
		e.metrics.RecordError("transport", "session")
	}
	// Remote closure tears the session down. If Stop initiated the closure
	// this is a no-op.
	go e.stop(err != nil, runID)
}

func (e *Engine) appendTranscript(entry TranscriptEntry) {
	e.mu.Lock()
	e.transcript = append(e.transcript, entry)
	e.mu.Unlock()
	e.metrics.RecordTranscriptEntry(string(entry.Role))
	if e.onTranscript != nil {
		e.onTranscript(entry)
	}
}

// playInline decodes one inline audio payload and schedules it. Malformed
// payloads are dropped; playback of other buffers continues.
func (e *Engine) playInline(data string) {
	buf, err := audio.Decode(data, 1, e.cfg.OutputSampleRate)
	if err != nil {
		e.logger.Warn().Err(err).Msg("dropping malformed audio buffer")
		e.metrics.RecordError("decode", "session")
		return
	}
	if _, err := e.scheduler.Enqueue(buf); err != nil {
		e.logger.Warn().Err(err).Msg("playback enqueue failed")
		e.metrics.RecordError("playback", "session")
		return
	}
	e.metrics.RecordPlaybackBuffer()
	e.metrics.RecordAudioBytes("out", int64(buf.FrameCount()*2))
}

// Stop performs the Closing transition: cancels the streaming loops,
// releases capture, stops playback, closes the connection, and, when the
// session ended cleanly with a non-empty transcript, runs the analyzer and
// persists the outcome. Idempotent and safe from any state.
func (e *Engine) Stop(isError bool) {
	e.stop(isError, 0)
}

// stop is Stop scoped to one session run. A zero runID matches any run;
// a non-zero runID makes the call a no-op once that run has ended.
func (e *Engine) stop(isError bool, runID uint64) {
	e.mu.Lock()
	if e.state == StateIdle || e.state == StateClosing {
		e.mu.Unlock()
		return
	}
	if runID != 0 && runID != e.run {
		e.mu.Unlock()
		return
	}
	e.state = StateClosing
	capCtx := e.capCtx
	conn := e.conn
	cancel := e.cancel
	transcript := make([]TranscriptEntry, len(e.transcript))
	copy(transcript, e.transcript)
	e.capCtx = nil
	e.conn = nil
	e.cancel = nil
	e.mu.Unlock()
	if e.onState != nil {
		e.onState(StateClosing)
	}
	e.logger.Info().Bool("is_error", isError).Msg("stopping interview session")

	if cancel != nil {
		cancel()
	}
	if capCtx != nil {
		e.capture.Release(capCtx)
	}
	e.scheduler.StopAll()
	if conn != nil {
		_ = conn.Close()
	}
	e.wg.Wait()

	if !isError && len(transcript) > 0 && e.analyzer != nil {
		e.metrics.RecordAnalysisStart()
		report := e.analyzer.Analyze(context.Background(), transcript)
		e.metrics.RecordAnalysisEnd(report != nil)
		e.mu.Lock()
		e.report = report
		e.mu.Unlock()
		if e.onReport != nil && report != nil {
			e.onReport(report)
		}
		e.persist(transcript, report)
	} else if len(transcript) > 0 {
		e.persist(transcript, nil)
	}

	e.mu.Lock()
	e.startedAt = time.Time{}
	e.state = StateIdle
	e.mu.Unlock()
	if e.onState != nil {
		e.onState(StateIdle)
	}
	e.metrics.RecordSessionEnd()
}

func (e *Engine) persist(transcript []TranscriptEntry, report *AssessmentReport) {
	if e.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.archive.SaveTranscript(ctx, transcript); err != nil {
		e.logger.Error().Err(err).Msg("transcript persistence failed")
		e.metrics.RecordError("persist", "session")
	}
	if report != nil {
		if err := e.archive.SaveReport(ctx, report); err != nil {
			e.logger.Error().Err(err).Msg("report persistence failed")
			e.metrics.RecordError("persist", "session")
		}
	}
}
