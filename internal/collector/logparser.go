package collector

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// LogEvent represents a parsed event from the log
type LogEvent struct {
	Timestamp time.Time
	Type      string
	Data      interface{}
}

// Event types
const (
	EventTypeClientConnect    = "client_connect"
	EventTypeClientUserinfo   = "client_userinfo"
	EventTypeClientDisconnect = "client_disconnect"
	EventTypeSay              = "say"
	EventTypeSayTeam          = "say_team"
	EventTypeTell             = "tell"
	EventTypeServerStartup    = "server_startup"
	EventTypeServerShutdown   = "server_shutdown"
)

type ClientConnectData struct {
	ClientID int
}

type ClientUserinfoData struct {
	ClientID int
	Name     string
	IsBot    bool
	GUID     string
}

type ClientDisconnectData struct {
	ClientID int
	GUID     string // only present for human players
}

// ChatData is a Say, SayTeam or Tell line. ToClientID is -1 unless the line
// was a tell.
type ChatData struct {
	ClientID   int
	ToClientID int
	Name       string
	Message    string
}

// Regular expressions for parsing log lines
var (
	// Matches ISO 8601 timestamp at start of line: 2026-01-12T10:58:23 or 2026-01-12T10:58:23.456789Z
	timestampRegex = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z?)\s+`)

	clientConnectRegex    = regexp.MustCompile(`^ClientConnect: (\d+)`)
	clientUserinfoRegex   = regexp.MustCompile(`^ClientUserinfoChanged: (\d+) (.+)$`)
	clientDisconnectRegex = regexp.MustCompile(`^ClientDisconnect: (\d+)(?: (.+))?$`)
	// Chat patterns: Say: <clientID> "<name>": <message>
	sayRegex            = regexp.MustCompile(`^Say: (\d+) "(.+)": (.+)$`)
	sayTeamRegex        = regexp.MustCompile(`^SayTeam: (\d+) "(.+)": (.+)$`)
	tellRegex           = regexp.MustCompile(`^Tell: (\d+) (\d+) "(.+)" "(.+)": (.+)$`)
	serverStartupRegex  = regexp.MustCompile(`^ServerStartup:$`)
	serverShutdownRegex = regexp.MustCompile(`^ServerShutdown:$`)
)

// LogTailer watches a log file and parses events
type LogTailer struct {
	path     string
	file     *os.File
	position int64
	Events   chan LogEvent
	Errors   chan error
	done     chan struct{}
}

// NewLogTailer creates a new log tailer
func NewLogTailer(path string) *LogTailer {
	return &LogTailer{
		path:   path,
		Events: make(chan LogEvent, 100),
		Errors: make(chan error, 10),
		done:   make(chan struct{}),
	}
}

// OpenFile opens the log file for reading (used before Replay)
func (t *LogTailer) OpenFile() error {
	file, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	t.file = file
	return nil
}

// Replay reads the file from the beginning and calls handler for each event
// synchronously. Tailing then continues from where the replay stopped.
func (t *LogTailer) Replay(handler func(LogEvent)) error {
	reader := bufio.NewReader(t.file)
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading line: %w", err)
		}
		t.position += int64(len(line))

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if event, err := ParseLine(line); err == nil {
			handler(*event)
		}
	}

	// A trailing partial line is re-read by the tail loop once complete.
	if _, err := t.file.Seek(t.position, io.SeekStart); err != nil {
		return fmt.Errorf("seeking after replay: %w", err)
	}
	return nil
}

// Start begins tailing the log file from the current position. Without a
// prior Replay the tailer starts at the end of the file.
func (t *LogTailer) Start() error {
	if t.file == nil {
		if err := t.OpenFile(); err != nil {
			return err
		}
		pos, err := t.file.Seek(0, io.SeekEnd)
		if err != nil {
			t.file.Close()
			return fmt.Errorf("seeking to end: %w", err)
		}
		t.position = pos
	}

	go t.tailLoop()
	return nil
}

// Stop stops the tailer
func (t *LogTailer) Stop() {
	close(t.done)
	if t.file != nil {
		t.file.Close()
	}
}

// tailLoop continuously reads new content from the log
func (t *LogTailer) tailLoop() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.readNewContent(); err != nil {
				select {
				case t.Errors <- err:
				default:
				}
			}
		}
	}
}

// readNewContent reads any new content since last read
func (t *LogTailer) readNewContent() error {
	stat, err := t.file.Stat()
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}

	// Handle copytruncate: file size smaller than position
	if stat.Size() < t.position {
		t.position = 0
	}
	if stat.Size() == t.position {
		return nil
	}
	if _, err := t.file.Seek(t.position, io.SeekStart); err != nil {
		return fmt.Errorf("seeking: %w", err)
	}

	reader := bufio.NewReader(t.file)
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			// Partial line - don't advance position past it
			break
		}
		if err != nil {
			return fmt.Errorf("reading line: %w", err)
		}
		t.position += int64(len(line))

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		event, err := ParseLine(line)
		if err == nil {
			select {
			case t.Events <- *event:
			case <-t.done:
				return nil
			}
		}
	}

	return nil
}

// ParseLine parses a single log line into an event
func ParseLine(line string) (*LogEvent, error) {
	var timestamp time.Time
	content := line

	if match := timestampRegex.FindStringSubmatch(line); match != nil {
		ts, err := time.Parse(time.RFC3339Nano, match[1])
		if err != nil {
			ts, err = time.ParseInLocation("2006-01-02T15:04:05", match[1], time.Local)
		}
		if err == nil {
			timestamp = ts
			content = line[len(match[0]):]
		}
	}
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	event := &LogEvent{Timestamp: timestamp}

	if match := clientConnectRegex.FindStringSubmatch(content); match != nil {
		clientID, _ := strconv.Atoi(match[1])
		event.Type = EventTypeClientConnect
		event.Data = ClientConnectData{ClientID: clientID}
		return event, nil
	}

	if match := clientUserinfoRegex.FindStringSubmatch(content); match != nil {
		clientID, _ := strconv.Atoi(match[1])
		userinfo := parseUserinfo(match[2])

		// Bot detection: presence of "skill" field
		_, isBot := userinfo["skill"]

		event.Type = EventTypeClientUserinfo
		event.Data = ClientUserinfoData{
			ClientID: clientID,
			Name:     userinfo["n"],
			IsBot:    isBot,
			GUID:     userinfo["g"],
		}
		return event, nil
	}

	if match := clientDisconnectRegex.FindStringSubmatch(content); match != nil {
		clientID, _ := strconv.Atoi(match[1])
		event.Type = EventTypeClientDisconnect
		event.Data = ClientDisconnectData{ClientID: clientID, GUID: match[2]}
		return event, nil
	}

	if match := sayRegex.FindStringSubmatch(content); match != nil {
		clientID, _ := strconv.Atoi(match[1])
		event.Type = EventTypeSay
		event.Data = ChatData{ClientID: clientID, ToClientID: -1, Name: match[2], Message: match[3]}
		return event, nil
	}

	if match := sayTeamRegex.FindStringSubmatch(content); match != nil {
		clientID, _ := strconv.Atoi(match[1])
		event.Type = EventTypeSayTeam
		event.Data = ChatData{ClientID: clientID, ToClientID: -1, Name: match[2], Message: match[3]}
		return event, nil
	}

	if match := tellRegex.FindStringSubmatch(content); match != nil {
		fromClientID, _ := strconv.Atoi(match[1])
		toClientID, _ := strconv.Atoi(match[2])
		event.Type = EventTypeTell
		event.Data = ChatData{ClientID: fromClientID, ToClientID: toClientID, Name: match[3], Message: match[5]}
		return event, nil
	}

	if serverStartupRegex.MatchString(content) {
		event.Type = EventTypeServerStartup
		return event, nil
	}

	if serverShutdownRegex.MatchString(content) {
		event.Type = EventTypeServerShutdown
		return event, nil
	}

	return nil, fmt.Errorf("unknown event: %s", content)
}

// parseUserinfo parses backslash-separated userinfo string
// Format is \key\value\key\value (starts with backslash)
func parseUserinfo(info string) map[string]string {
	result := make(map[string]string)
	parts := strings.Split(info, "\\")

	start := 0
	if len(parts) > 0 && parts[0] == "" {
		start = 1
	}

	for i := start; i+1 < len(parts); i += 2 {
		result[parts[i]] = parts[i+1]
	}

	return result
}
