package collector

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ernie/trinity-link/internal/config"
	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/worker"
)

type rconCall struct {
	address, password, command string
}

type fakeRcon struct {
	mu    sync.Mutex
	calls []rconCall
	err   error
}

func (f *fakeRcon) RconCommand(address, password, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rconCall{address, password, command})
	return "", f.err
}

func (f *fakeRcon) snapshot() []rconCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]rconCall(nil), f.calls...)
}

type fakeCommands struct {
	mu     sync.Mutex
	auth   []domain.Identity
	deauth []domain.Identity
	called chan struct{}
}

func newFakeCommands() *fakeCommands {
	return &fakeCommands{called: make(chan struct{}, 8)}
}

func (f *fakeCommands) AuthCommand(ctx context.Context, game domain.Identity) (string, error) {
	f.mu.Lock()
	f.auth = append(f.auth, game)
	f.mu.Unlock()
	f.called <- struct{}{}
	return "ABCDE", nil
}

func (f *fakeCommands) DeauthCommand(ctx context.Context, game domain.Identity) error {
	f.mu.Lock()
	f.deauth = append(f.deauth, game)
	f.mu.Unlock()
	f.called <- struct{}{}
	return nil
}

const testGUID = "ABCDEF0123456789ABCDEF0123456789"

func feed(t *testing.T, m *ServerManager, server int, replay bool, lines ...string) {
	t.Helper()
	for _, line := range lines {
		event, err := ParseLine(line)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", line, err)
		}
		m.handleLogEvent(context.Background(), server, *event, replay)
	}
}

func newTestPool(t *testing.T) *worker.Pool {
	pool := worker.NewPool("commands", 4, 16)
	t.Cleanup(func() { pool.Close(context.Background()) })
	return pool
}

func newTestManager(t *testing.T, rcon Rcon) *ServerManager {
	servers := []config.Q3Server{
		{Name: "ffa", Address: "10.0.0.1:27960", RconPassword: "pw1"},
		{Name: "ctf", Address: "10.0.0.2:27960", RconPassword: "pw2"},
	}
	return NewServerManager(servers, rcon, []string{"auth", "!Authenticate"}, []string{"deauth"}, newTestPool(t))
}

// settle waits for every queued command to finish
func settle(t *testing.T, m *ServerManager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.commandPool.Close(ctx); err != nil {
		t.Fatalf("commands did not finish: %v", err)
	}
}

func TestChatCommandsDispatch(t *testing.T) {
	m := newTestManager(t, &fakeRcon{})
	cmds := newFakeCommands()
	m.commands = cmds
	m.startupComplete = true

	feed(t, m, 0, false,
		`ClientConnect: 2`,
		`ClientUserinfoChanged: 2 n\Ernie\t\0\g\`+testGUID,
		`Say: 2 "Ernie": !auth`,
		`SayTeam: 2 "Ernie": !AUTHENTICATE please`,
		`Say: 2 "Ernie": !deauth`,
		`Say: 2 "Ernie": auth`,
		`Say: 2 "Ernie": !kick bob`,
	)
	settle(t, m)

	cmds.mu.Lock()
	defer cmds.mu.Unlock()
	if len(cmds.auth) != 2 || cmds.auth[0] != testGUID {
		t.Errorf("auth calls = %v", cmds.auth)
	}
	if len(cmds.deauth) != 1 {
		t.Errorf("deauth calls = %v", cmds.deauth)
	}
}

func TestCommandsIgnoredDuringReplay(t *testing.T) {
	m := newTestManager(t, &fakeRcon{})
	cmds := newFakeCommands()
	m.commands = cmds

	feed(t, m, 0, true,
		`ClientUserinfoChanged: 2 n\Ernie\g\`+testGUID,
		`Say: 2 "Ernie": !auth`,
	)
	m.startupComplete = true
	feed(t, m, 0, true, `Say: 2 "Ernie": !auth`)
	settle(t, m)

	if len(cmds.auth) != 0 {
		t.Errorf("replayed command dispatched: %v", cmds.auth)
	}
	if err := m.Tell(testGUID, "welcome back"); err != nil {
		t.Errorf("replay did not rebuild client table: %v", err)
	}
}

func TestCommandWithoutGUIDIsRefused(t *testing.T) {
	rcon := &fakeRcon{}
	m := newTestManager(t, rcon)
	cmds := newFakeCommands()
	m.commands = cmds
	m.startupComplete = true

	feed(t, m, 1, false,
		`ClientUserinfoChanged: 4 n\Sarge\skill\3`,
		`Say: 4 "Sarge": !auth`,
	)
	settle(t, m)

	calls := rcon.snapshot()
	if len(calls) != 1 || calls[0].address != "10.0.0.2:27960" || !strings.HasPrefix(calls[0].command, "tell 4 ") {
		t.Errorf("rcon calls = %+v", calls)
	}
	if len(cmds.auth) != 0 {
		t.Errorf("auth dispatched for bot: %v", cmds.auth)
	}
}

func TestTellRoutesToEverySlot(t *testing.T) {
	rcon := &fakeRcon{}
	m := newTestManager(t, rcon)

	feed(t, m, 0, true, `ClientUserinfoChanged: 2 n\Ernie\g\`+testGUID)
	feed(t, m, 1, true,
		`ClientUserinfoChanged: 5 n\Ernie\g\`+testGUID,
		`ClientUserinfoChanged: 6 n\Other\g\FFFF`,
	)

	if err := m.Tell(testGUID, `say "hi"`); err != nil {
		t.Fatalf("Tell: %v", err)
	}
	calls := rcon.snapshot()
	if len(calls) != 2 {
		t.Fatalf("rcon calls = %+v", calls)
	}
	for _, c := range calls {
		switch c.address {
		case "10.0.0.1:27960":
			if c.command != "tell 2 ^7say 'hi'" || c.password != "pw1" {
				t.Errorf("ffa call = %+v", c)
			}
		case "10.0.0.2:27960":
			if c.command != "tell 5 ^7say 'hi'" || c.password != "pw2" {
				t.Errorf("ctf call = %+v", c)
			}
		}
	}

	feed(t, m, 0, false, `ClientDisconnect: 2`)
	feed(t, m, 1, false, `ServerShutdown:`)
	if err := m.Tell(testGUID, "hi"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Tell after leaving = %v, want ErrNotConnected", err)
	}
}

func TestTellReportsRconFailure(t *testing.T) {
	rcon := &fakeRcon{err: errors.New("timeout")}
	m := newTestManager(t, rcon)
	feed(t, m, 0, true, `ClientUserinfoChanged: 2 n\Ernie\g\`+testGUID)

	if err := m.Tell(testGUID, "hi"); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("Tell = %v", err)
	}
}

// slowCommands blocks AuthCommand for one GUID until released
type slowCommands struct {
	slow       domain.Identity
	release    chan struct{}
	dispatched chan domain.Identity
}

func (c *slowCommands) AuthCommand(ctx context.Context, game domain.Identity) (string, error) {
	if game == c.slow {
		select {
		case <-c.release:
		case <-ctx.Done():
		}
		return "", ctx.Err()
	}
	c.dispatched <- game
	return "ABCDE", nil
}

func (c *slowCommands) DeauthCommand(ctx context.Context, game domain.Identity) error {
	return nil
}

func TestSlowCommandDoesNotBlockOtherPlayers(t *testing.T) {
	const otherGUID = "0123456789ABCDEF0123456789ABCDEF"
	m := newTestManager(t, &fakeRcon{})
	cmds := &slowCommands{
		slow:       testGUID,
		release:    make(chan struct{}),
		dispatched: make(chan domain.Identity, 1),
	}
	defer close(cmds.release)
	m.commands = cmds
	m.startupComplete = true

	var events []LogEvent
	for _, line := range []string{
		`ClientUserinfoChanged: 1 n\Ernie\g\` + testGUID,
		`ClientUserinfoChanged: 2 n\Sarge\g\` + otherGUID,
		`Say: 1 "Ernie": !auth`,
		`Say: 2 "Sarge": !auth`,
	} {
		event, err := ParseLine(line)
		if err != nil {
			t.Fatalf("ParseLine(%q): %v", line, err)
		}
		events = append(events, *event)
	}

	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for _, event := range events {
			m.handleLogEvent(context.Background(), 0, event, false)
		}
	}()

	select {
	case game := <-cmds.dispatched:
		if game != otherGUID {
			t.Errorf("dispatched %s, want %s", game, otherGUID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("second player's command waited on the first")
	}
	select {
	case <-fed:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("log reading blocked on a running command")
	}
}

func TestStartReplaysAndTails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "games.log")
	history := "ClientUserinfoChanged: 2 n\\Ernie\\g\\" + testGUID + "\nSay: 2 \"Ernie\": !auth\n"
	if err := os.WriteFile(path, []byte(history), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewServerManager([]config.Q3Server{{Name: "ffa", Address: "x", LogPath: path}}, &fakeRcon{}, []string{"auth"}, nil, newTestPool(t))
	cmds := newFakeCommands()
	if err := m.Start(context.Background(), cmds); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("Say: 2 \"Ernie\": !auth\n")
	f.Close()

	select {
	case <-cmds.called:
	case <-time.After(3 * time.Second):
		t.Fatal("live command not dispatched")
	}
	cmds.mu.Lock()
	defer cmds.mu.Unlock()
	if len(cmds.auth) != 1 {
		t.Errorf("auth calls = %v, want only the live one", cmds.auth)
	}
}

func TestQ3ClientRcon(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, 1024)
		n, addr, err := pc.ReadFrom(buf)
		if err != nil {
			return
		}
		received <- string(buf[:n])
		pc.WriteTo([]byte(printPrefix+"ok\n"), addr)
	}()

	c := NewQ3Client()
	c.readWait = 200 * time.Millisecond
	resp, err := c.RconCommand(pc.LocalAddr().String(), "secret", "tell 1 ^7hi")
	if err != nil {
		t.Fatalf("RconCommand: %v", err)
	}
	if resp != "ok\n" {
		t.Errorf("response = %q", resp)
	}
	if got := <-received; got != q3Header+"rcon secret tell 1 ^7hi" {
		t.Errorf("request = %q", got)
	}
}
