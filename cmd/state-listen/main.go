package main

import (
	"flag"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// state-listen subscribes to a smoothscroll daemon's state websocket and
// prints every envelope it receives. Handy for watching gestures live:
//
//	state-listen -ws ws://127.0.0.1:8137/ws
func main() {
	wsURL := flag.String("ws", "ws://127.0.0.1:8137/ws", "smoothscroll state websocket URL")
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected (press Ctrl+C to exit)")

	// Keepalive: the daemon pings; answer with pongs and refresh the read
	// deadline.
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	msgs := make(chan []byte)
	errs := make(chan error, 1)

	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			msgs <- msg
		}
	}()

	for {
		select {
		case msg := <-msgs:
			log.Printf("%s", msg)
		case err := <-errs:
			log.Fatalf("read: %v", err)
		case <-sigc:
			log.Printf("bye")
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
