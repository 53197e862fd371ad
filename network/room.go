package network

import (
	"context"
	"log"
	"sync"
	"time"

	"sentinel_director_server/logic"
)

// Room is the observer hub of one site. It owns the authoritative GameLoop
// and keeps a mirror power grid so late joiners get lamp state without a
// round trip into the loop.
type Room struct {
	ID         string
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	GameLoop   *logic.GameLoop
	Config     *logic.DirectorConfig
	Mirror     *logic.PowerGrid
	Mutex      sync.RWMutex

	lastRound logic.RoundSnapshot
	stop      chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
}

func NewRoom(id string, cfg *logic.DirectorConfig, recorder logic.Recorder) (*Room, error) {
	loop, err := logic.NewGameLoop(cfg, recorder)
	if err != nil {
		return nil, err
	}
	r := &Room{
		ID:         id,
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		GameLoop:   loop,
		Config:     cfg,
		Mirror:     logic.NewMirrorGrid(cfg.Lamps.LampConfig),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	return r, nil
}

func (r *Room) Run() {
	defer close(r.done)

	// Start Game Loop
	go r.GameLoop.Run()
	log.Printf("Room %s started. Tick: %dms", r.ID, r.Config.Server.TickRateMs)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if snap, ok := r.GameLoop.RequestSnapshot(ctx); ok {
		r.applySnapshot(snap.Round, snap.Lamps)
	} else {
		log.Printf("Room %s: WARN initial snapshot unavailable", r.ID)
	}
	cancel()

	for {
		select {
		case client := <-r.Register:
			r.Mutex.Lock()
			if len(r.Clients) >= r.Config.Server.MaxObservers {
				r.Mutex.Unlock()
				client.SendJSON(MsgError, errorPayload{Error: "site full"})
				client.close()
				continue
			}
			r.Clients[client] = true
			r.Mutex.Unlock()

			client.SendJSON(MsgWelcome, welcomePayload{Success: true, SessionID: client.SessionID, Site: r.ID})
			client.SendJSON(MsgRoundSnapshot, r.siteSnapshot())

		case client := <-r.Unregister:
			r.Mutex.Lock()
			if _, ok := r.Clients[client]; ok {
				delete(r.Clients, client)
				client.close()
			}
			r.Mutex.Unlock()

		case frame := <-r.GameLoop.FrameChan:
			r.applySnapshot(frame.Round, frame.Lamps)
			msg := encode(MsgFrame, frame)

			r.Mutex.RLock()
			for client := range r.Clients {
				client.sendRaw(msg)
			}
			r.Mutex.RUnlock()

		case <-r.stop:
			r.GameLoop.Stop()
			r.Mutex.Lock()
			for client := range r.Clients {
				delete(r.Clients, client)
				client.close()
			}
			r.Mutex.Unlock()
			log.Printf("Room %s stopped.", r.ID)
			return
		}
	}
}

func (r *Room) applySnapshot(round logic.RoundSnapshot, lamps []logic.LampSnapshot) {
	r.lastRound = round
	if err := r.Mirror.ApplySnapshots(lamps); err != nil {
		log.Printf("Room %s: mirror update failed: %v", r.ID, err)
	}
}

// siteSnapshot is built from the mirror, never from the authoritative state.
func (r *Room) siteSnapshot() logic.SiteSnapshot {
	return logic.SiteSnapshot{Round: r.lastRound, Lamps: r.Mirror.Snapshots()}
}

// Stop shuts the hub and its loop down and waits for both.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

// ClientCount returns the number of connected observers.
func (r *Room) ClientCount() int {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()
	return len(r.Clients)
}
