package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ernie/trinity-link/internal/config"
	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/worker"
)

// ErrNotConnected is returned by Tell when no server has the player online
var ErrNotConnected = errors.New("player not connected")

// Commands is the link command surface driven from game chat
type Commands interface {
	AuthCommand(ctx context.Context, game domain.Identity) (string, error)
	DeauthCommand(ctx context.Context, game domain.Identity) error
}

// ServerManager follows the logs of every configured server, tracks which
// GUID sits in which client slot, and turns chat commands into link commands.
type ServerManager struct {
	rcon           Rcon
	authAliases    map[string]bool
	deauthAliases  map[string]bool
	commands       Commands
	commandPool    *worker.Pool
	commandTimeout time.Duration

	mu              sync.RWMutex
	servers         []*serverState
	tailers         []*LogTailer
	done            chan struct{}
	wg              sync.WaitGroup
	startupComplete bool // true after Start() replays logs, enables chat commands
}

// serverState tracks the connected clients of one server
type serverState struct {
	server  config.Q3Server
	clients map[int]*clientState // client ID -> client state
}

// clientState tracks a connected client
type clientState struct {
	clientID int
	name     string
	guid     string
	isBot    bool
}

// NewServerManager creates a manager for servers. Chat commands matching
// authAliases or deauthAliases (without the leading '!') are handled on pool
// so a slow command never holds up log reading.
func NewServerManager(servers []config.Q3Server, rcon Rcon, authAliases, deauthAliases []string, pool *worker.Pool) *ServerManager {
	m := &ServerManager{
		rcon:           rcon,
		authAliases:    aliasSet(authAliases),
		deauthAliases:  aliasSet(deauthAliases),
		commandPool:    pool,
		commandTimeout: 30 * time.Second,
		done:           make(chan struct{}),
	}
	for _, srv := range servers {
		m.servers = append(m.servers, &serverState{
			server:  srv,
			clients: make(map[int]*clientState),
		})
	}
	return m
}

func aliasSet(aliases []string) map[string]bool {
	set := make(map[string]bool, len(aliases))
	for _, a := range aliases {
		set[strings.ToLower(strings.TrimPrefix(a, "!"))] = true
	}
	return set
}

// Start replays each server's log to rebuild who is connected, then tails
// the logs and dispatches chat commands to commands.
func (m *ServerManager) Start(ctx context.Context, commands Commands) error {
	m.commands = commands

	for i, state := range m.servers {
		srv := state.server
		if srv.LogPath == "" {
			log.Printf("Warning: no log_path for %s, chat commands disabled there", srv.Name)
			continue
		}

		tailer := NewLogTailer(srv.LogPath)
		if err := tailer.OpenFile(); err != nil {
			log.Printf("Warning: failed to open log file for %s: %v", srv.Name, err)
			continue
		}

		log.Printf("Replaying log for %s", srv.Name)
		serverIdx := i
		if err := tailer.Replay(func(event LogEvent) {
			m.handleLogEvent(ctx, serverIdx, event, true)
		}); err != nil {
			log.Printf("Warning: failed to replay log for %s: %v", srv.Name, err)
		}

		if err := tailer.Start(); err != nil {
			log.Printf("Warning: failed to start log tailer for %s: %v", srv.Name, err)
			tailer.Stop()
			continue
		}
		m.tailers = append(m.tailers, tailer)
		m.wg.Add(1)
		go m.processLogEvents(ctx, serverIdx, tailer)
	}

	m.mu.Lock()
	m.startupComplete = true
	m.mu.Unlock()
	log.Printf("Startup complete, link commands now enabled")
	return nil
}

// Stop stops all log watching
func (m *ServerManager) Stop() {
	log.Println("ServerManager: stopping...")
	close(m.done)
	for _, tailer := range m.tailers {
		tailer.Stop()
	}
	m.wg.Wait()
	log.Println("ServerManager: shutdown complete")
}

func (m *ServerManager) processLogEvents(ctx context.Context, serverIdx int, tailer *LogTailer) {
	defer m.wg.Done()

	for {
		select {
		case <-m.done:
			return
		case <-ctx.Done():
			return
		case err := <-tailer.Errors:
			log.Printf("Log tailer error for %s: %v", m.servers[serverIdx].server.Name, err)
		case event := <-tailer.Events:
			m.handleLogEvent(ctx, serverIdx, event, false)
		}
	}
}

// handleLogEvent processes a single log event. In replay mode only the
// client table is rebuilt and chat commands are ignored.
func (m *ServerManager) handleLogEvent(ctx context.Context, serverIdx int, event LogEvent, replayMode bool) {
	m.mu.Lock()
	state := m.servers[serverIdx]
	var command worker.Task

	switch event.Type {
	case EventTypeServerStartup, EventTypeServerShutdown:
		state.clients = make(map[int]*clientState)

	case EventTypeClientConnect:
		data := event.Data.(ClientConnectData)
		state.clients[data.ClientID] = &clientState{clientID: data.ClientID}

	case EventTypeClientUserinfo:
		data := event.Data.(ClientUserinfoData)
		client, ok := state.clients[data.ClientID]
		if !ok {
			client = &clientState{clientID: data.ClientID}
			state.clients[data.ClientID] = client
		}
		client.name = data.Name
		client.guid = data.GUID
		client.isBot = data.IsBot

	case EventTypeClientDisconnect:
		data := event.Data.(ClientDisconnectData)
		delete(state.clients, data.ClientID)

	case EventTypeSay, EventTypeSayTeam, EventTypeTell:
		data := event.Data.(ChatData)
		if !replayMode && m.startupComplete {
			command = m.chatCommand(state, data)
		}
	}
	m.mu.Unlock()

	// Replies go back through Tell, which takes the lock.
	if command != nil {
		m.commandPool.Submit(command)
	}
}

// chatCommand returns the task for a chat line, or nil if it is not one of
// the link commands. Called with m.mu held.
func (m *ServerManager) chatCommand(state *serverState, data ChatData) worker.Task {
	msg := strings.TrimSpace(data.Message)
	if !strings.HasPrefix(msg, "!") {
		return nil
	}
	cmd := strings.ToLower(strings.Fields(msg[1:] + " ")[0])
	isAuth, isDeauth := m.authAliases[cmd], m.deauthAliases[cmd]
	if !isAuth && !isDeauth {
		return nil
	}

	server := state.server
	clientID := data.ClientID
	client, ok := state.clients[clientID]
	if !ok || client.guid == "" || client.isBot {
		log.Printf("%s: client %d on %s has no GUID", cmd, clientID, server.Name)
		return func(context.Context) {
			m.sendTell(server, clientID, "^1Error: Could not identify your GUID. Try reconnecting.")
		}
	}
	game := domain.Identity(client.guid)
	log.Printf("Command from client %d (%s) on %s: %s", clientID, domain.CleanQ3Name(client.name), server.Name, cmd)

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, m.commandTimeout)
		defer cancel()

		var err error
		if isAuth {
			_, err = m.commands.AuthCommand(ctx, game)
		} else {
			err = m.commands.DeauthCommand(ctx, game)
		}
		// Validation, not-found and conflict outcomes were already told to the player.
		if domain.Kind(err) == domain.KindExternal || domain.Kind(err) == domain.KindPersistence {
			log.Printf("Error handling %s for %s: %v", cmd, game, err)
		}
	}
}

// Tell sends a private message to every client slot the GUID occupies
func (m *ServerManager) Tell(game domain.Identity, message string) error {
	type target struct {
		server   config.Q3Server
		clientID int
	}
	var targets []target

	m.mu.RLock()
	for _, state := range m.servers {
		for _, client := range state.clients {
			if client.guid != "" && domain.Identity(client.guid) == game {
				targets = append(targets, target{state.server, client.clientID})
			}
		}
	}
	m.mu.RUnlock()

	if len(targets) == 0 {
		return fmt.Errorf("%w: %s", ErrNotConnected, game)
	}

	var errs []error
	for _, t := range targets {
		if _, err := m.rcon.RconCommand(t.server.Address, t.server.RconPassword, tellCommand(t.clientID, message)); err != nil {
			errs = append(errs, fmt.Errorf("telling client %d on %s: %w", t.clientID, t.server.Name, err))
		}
	}
	return errors.Join(errs...)
}

// sendTell sends a private message to a client slot
func (m *ServerManager) sendTell(server config.Q3Server, clientID int, message string) {
	if _, err := m.rcon.RconCommand(server.Address, server.RconPassword, tellCommand(clientID, message)); err != nil {
		log.Printf("Error sending tell to client %d on %s: %v", clientID, server.Name, err)
	}
}

func tellCommand(clientID int, message string) string {
	// Double quotes would end the tell argument early.
	message = strings.ReplaceAll(message, `"`, "'")
	return fmt.Sprintf("tell %d ^7%s", clientID, message)
}
