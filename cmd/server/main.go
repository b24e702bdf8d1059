// Command server runs a standalone annotation relay. Sessions point at
// it with --relay; it routes annotation and negotiation traffic
// between room members and holds no annotation state itself.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/tomaslejdung/goscribble/pkg/signal"
)

func main() {
	var port int
	var host string
	flag.IntVar(&port, "port", 8080, "Relay listen port")
	flag.IntVar(&port, "p", 8080, "Relay listen port (shorthand)")
	flag.StringVar(&host, "host", "", "Relay listen address (default: all interfaces)")
	flag.Parse()

	addr := fmt.Sprintf("%s:%d", host, port)
	server := signal.NewServer()
	if err := server.StartServer(addr); err != nil {
		log.Fatalf("Relay failed: %v", err)
	}
}
