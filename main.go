package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tomaslejdung/goscribble/pkg/geometry"
	"github.com/tomaslejdung/goscribble/pkg/role"
	"github.com/tomaslejdung/goscribble/pkg/settings"
	sig "github.com/tomaslejdung/goscribble/pkg/signal"
)

// DefaultSTUNServer is used for peer connections unless overridden.
const DefaultSTUNServer = "stun:stun.l.google.com:19302"

// LocalRelay is the URL for a relay on this machine.
const LocalRelay = "ws://localhost:8080"

// Config holds runtime configuration
type Config struct {
	ServeMode bool
	Port      int
	RelayURL  string
	RoomCode  string
	Password  string
	Name      string
	AsSharer  bool
	AsViewer  bool

	SurfaceWidth  float64
	SurfaceHeight float64

	STUNServer string
	ForceRelay bool
	Help       bool
}

func parseFlags() Config {
	config := Config{}
	var localMode bool

	flag.BoolVar(&config.ServeMode, "serve", false, "Run as relay server only")
	flag.BoolVar(&config.ServeMode, "s", false, "Run as relay server only (shorthand)")

	flag.IntVar(&config.Port, "port", 8080, "Relay server port")
	flag.IntVar(&config.Port, "p", 8080, "Relay server port (shorthand)")

	flag.StringVar(&config.RelayURL, "relay", "", "Relay server URL (overrides saved setting)")
	flag.BoolVar(&localMode, "local", false, "Use local relay server ("+LocalRelay+")")

	flag.StringVar(&config.RoomCode, "join", "", "Room code to join (empty: host a new room)")
	flag.StringVar(&config.RoomCode, "j", "", "Room code to join (shorthand)")
	flag.StringVar(&config.Password, "password", "", "Room password")
	flag.StringVar(&config.Name, "name", "", "Display name")
	flag.BoolVar(&config.AsSharer, "share", false, "Join as the screen sharer")
	flag.BoolVar(&config.AsViewer, "view", false, "Join view-only")

	flag.Float64Var(&config.SurfaceWidth, "width", 1920, "Capture surface width in pixels")
	flag.Float64Var(&config.SurfaceHeight, "height", 1080, "Capture surface height in pixels")

	flag.StringVar(&config.STUNServer, "stun", DefaultSTUNServer, "STUN server for peer connections")
	flag.BoolVar(&config.ForceRelay, "force-relay", false, "Keep annotation traffic on the relay (no direct peer channels)")

	flag.BoolVar(&config.Help, "help", false, "Show help")
	flag.BoolVar(&config.Help, "h", false, "Show help (shorthand)")

	flag.Parse()

	if localMode {
		config.RelayURL = LocalRelay
	}

	return config
}

func printHelp() {
	fmt.Println(`GoScribble - shared annotations over a screen share

Usage: goscribble [options]

Hosting creates a room on the relay and prints its code; others join
with --join. Everyone in the room sees the same strokes.

Options:
  --join, -j <code>      Room code to join (default: host a new room)
  --password <pass>      Room password (hosts set it, joiners supply it)
  --name <name>          Display name shown to other participants
  --share                Join as the screen sharer
  --view                 Join view-only (no annotation rights)
  --relay <url>          Relay server URL (overrides saved setting)
  --local                Use local relay server (` + LocalRelay + `)
  --serve, -s            Run as relay server only
  --port, -p <port>      Relay server port (default: 8080)
  --width <px>           Capture surface width (default: 1920)
  --height <px>          Capture surface height (default: 1080)

Network Options:
  --stun <url>           STUN server for peer connections
  --force-relay          Keep annotation traffic on the relay

Roles:
  host       first participant in the room; full control
  sharer     shares the screen; may delete any stroke and clear
  annotator  draws and deletes own strokes (default)
  viewer     watches only

Examples:
  goscribble --serve                 # Run a relay
  goscribble --local --name alice    # Host a room via the local relay
  goscribble --local --join QUICK-FROG-42 --name bob

TUI Controls:
  1-3           Select tool (pen, highlighter, eraser)
  c             Cycle color
  +/-           Adjust stroke width
  x             Clear all annotations (host/sharer)
  u             Delete your most recent stroke
  r             Request a state sync
  q             Quit`)
}

func main() {
	config := parseFlags()

	if config.Help {
		printHelp()
		return
	}

	if config.ServeMode {
		addr := fmt.Sprintf(":%d", config.Port)
		server := sig.NewServer()
		if err := server.StartServer(addr); err != nil {
			log.Fatalf("Relay failed: %v", err)
		}
		return
	}

	userSettings, err := settings.Load()
	if err != nil {
		log.Printf("Settings load failed, using defaults: %v", err)
		userSettings = settings.DefaultSettings()
	}

	relayURL := config.RelayURL
	if relayURL == "" {
		relayURL = userSettings.RelayURL
	}
	name := config.Name
	if name == "" {
		name = userSettings.Name
	}

	roomCode := config.RoomCode
	hosting := roomCode == ""
	if hosting {
		roomCode = sig.GenerateRoomCode()
	}

	wantRole := ""
	if config.AsSharer {
		wantRole = string(role.Sharer)
	}
	if config.AsViewer {
		wantRole = string(role.Viewer)
	}

	session, err := NewSession(SessionConfig{
		RelayURL:   relayURL,
		RoomCode:   roomCode,
		Password:   config.Password,
		Name:       name,
		WantRole:   wantRole,
		Surface:    geometry.Size{Width: config.SurfaceWidth, Height: config.SurfaceHeight},
		STUNServer: config.STUNServer,
		ForceRelay: config.ForceRelay,
	})
	if err != nil {
		log.Fatalf("Session failed: %v", err)
	}
	defer session.Close()

	if hosting {
		log.Printf("Hosting room %s", session.RoomCode())
	}

	if name != "" && name != userSettings.Name {
		userSettings.Name = name
		if err := settings.Save(userSettings); err != nil {
			log.Printf("Settings save failed: %v", err)
		}
	}

	if err := RunTUI(session, userSettings); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		os.Exit(1)
	}
}
