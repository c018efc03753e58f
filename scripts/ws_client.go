// Package main runs a demo WebSocket client that submits a generated
// instance and tails its run events.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/gorilla/websocket"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func postJSON(url string, body any, out any) {
	b, err := json.Marshal(body)
	if err != nil {
		log.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		log.Fatalf("POST %s: %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatal(err)
	}
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	customers := 20
	if len(os.Args) > 1 {
		n, err := strconv.Atoi(os.Args[1])
		if err != nil {
			log.Fatalf("customers: %v", err)
		}
		customers = n
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	var inst json.RawMessage
	postJSON(base+"/v1/instances/generate", map[string]any{"customers": customers, "seed": 1, "splitFraction": 0.25}, &inst)

	var accepted struct {
		ID string `json:"id"`
	}
	postJSON(base+"/v1/runs", map[string]any{"instance": inst}, &accepted)
	log.Printf("Run ID: %s", accepted.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/runs/" + accepted.ID + "/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()
	if err := c.WriteJSON(wsMessage{Type: "connection_init"}); err != nil {
		log.Fatal(err)
	}

	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Printf("read: %v", err)
			return
		}
		switch m.Type {
		case "next":
			log.Printf("WS <- %s: %s", m.ID, string(m.Payload))
		case "complete":
			log.Printf("run %s complete", accepted.ID)
			return
		default:
			log.Printf("WS <- %s", m.Type)
		}
	}
}
