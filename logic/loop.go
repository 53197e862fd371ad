package logic

import (
	"context"
	"log"
	"sync"
	"time"
)

type InputType int

const (
	InputStartRound InputType = iota
	InputEndRound
	InputPresence
	InputLeave
	InputEntityDespawned
	InputSnapshot
)

// DirectorInput is a collaborator report or command funnelled into the loop.
type DirectorInput struct {
	Type InputType
	// Payload fields (only the ones matching Type are read)
	Player   Player
	PlayerID string
	UID      string
	Success  bool
	Seed     *int64
	Reply    chan SiteSnapshot
}

// GameLoop is the single writer of a GameState. Every mutation arrives on
// InputChan and every tick's changes leave on FrameChan.
type GameLoop struct {
	GameState *GameState
	InputChan chan DirectorInput
	FrameChan chan Frame
	StopChan  chan struct{}

	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
}

func NewGameLoop(cfg *DirectorConfig, recorder Recorder) (*GameLoop, error) {
	gs, err := NewGameState(cfg, recorder)
	if err != nil {
		return nil, err
	}
	return &GameLoop{
		GameState: gs,
		InputChan: make(chan DirectorInput, 100),
		FrameChan: make(chan Frame, 8),
		StopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}, nil
}

// Run drives the loop until Stop. It returns immediately if Stop came first.
func (gl *GameLoop) Run() {
	gl.mu.Lock()
	if gl.stopped || gl.started {
		gl.mu.Unlock()
		return
	}
	gl.started = true
	gl.mu.Unlock()
	defer close(gl.done)
	tickRate := time.Duration(gl.GameState.Config.Server.TickRateMs) * time.Millisecond
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	log.Println("GameLoop Started.")
	last := time.Now()

	for {
		select {
		case input := <-gl.InputChan:
			gl.handleInput(input)

		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			frame, ok := gl.Step(dt)
			if !ok {
				continue
			}
			// Drop the frame if the network side is behind; the next frame
			// still carries the current round snapshot.
			select {
			case gl.FrameChan <- frame:
			default:
			}

		case <-gl.StopChan:
			if gl.GameState.Round.Active {
				_ = gl.GameState.EndRound(context.Background(), false)
			}
			log.Println("GameLoop Stopped.")
			return
		}
	}
}

// Step advances the virtual clock by dt and drains the resulting frame.
func (gl *GameLoop) Step(dt float64) (Frame, bool) {
	gl.GameState.Advance(dt)
	return gl.GameState.DrainFrame()
}

// Stop ends the loop and waits for it to exit. Safe to call more than once.
func (gl *GameLoop) Stop() {
	gl.stopOnce.Do(func() {
		gl.mu.Lock()
		gl.stopped = true
		running := gl.started
		gl.mu.Unlock()
		close(gl.StopChan)
		if !running {
			// No loop goroutine owns the state, so end the round here.
			if gl.GameState.Round.Active {
				_ = gl.GameState.EndRound(context.Background(), false)
			}
			close(gl.done)
		}
	})
	<-gl.done
}

// Submit queues an input without blocking; it reports false when the queue
// is full or the loop has stopped.
func (gl *GameLoop) Submit(in DirectorInput) bool {
	select {
	case <-gl.StopChan:
		return false
	default:
	}
	select {
	case gl.InputChan <- in:
		return true
	default:
		log.Printf("GameLoop input queue full, dropping input %d", in.Type)
		return false
	}
}

// RequestSnapshot asks the loop for the full site state.
func (gl *GameLoop) RequestSnapshot(ctx context.Context) (SiteSnapshot, bool) {
	reply := make(chan SiteSnapshot, 1)
	select {
	case gl.InputChan <- DirectorInput{Type: InputSnapshot, Reply: reply}:
	case <-gl.StopChan:
		return SiteSnapshot{}, false
	case <-ctx.Done():
		return SiteSnapshot{}, false
	}
	select {
	case snap := <-reply:
		return snap, true
	case <-gl.done:
		return SiteSnapshot{}, false
	case <-ctx.Done():
		return SiteSnapshot{}, false
	}
}

func (gl *GameLoop) handleInput(input DirectorInput) {
	gs := gl.GameState
	ctx := context.Background()

	switch input.Type {
	case InputStartRound:
		if input.Seed != nil {
			gs.StartRoundWithSeed(ctx, *input.Seed)
		} else {
			gs.StartRound(ctx)
		}
	case InputEndRound:
		if err := gs.EndRound(ctx, input.Success); err != nil {
			log.Printf("[Round] end ignored: %v", err)
		}
	case InputPresence:
		gs.UpdatePlayer(input.Player)
	case InputLeave:
		gs.RemovePlayer(input.PlayerID)
	case InputEntityDespawned:
		gs.DespawnEntity(input.UID)
	case InputSnapshot:
		if input.Reply != nil {
			input.Reply <- gs.Snapshot()
		}
	}
}
