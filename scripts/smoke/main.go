// Command smoke drives one full game against a running server: it
// creates a room over HTTP, attaches over WebSocket, plays the sync
// countdown, answers every question, and prints the final leaderboard.
// A development aid, not a test.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

var log = logrus.WithField("component", "smoke")

type createRoomResponse struct {
	RoomCode         string `json:"roomCode"`
	RoomID           string `json:"roomId"`
	ParticipantID    string `json:"participantId"`
	ParticipantToken string `json:"participantToken"`
}

func main() {
	server := pflag.String("server", "http://127.0.0.1:8080", "base URL of the server")
	name := pflag.String("name", "smoke-bot", "display name")
	conv := pflag.String("conv", "binary-standalone", "conversion kind")
	goal := pflag.Int("goal", 3, "first-to goal")
	pflag.Parse()

	if err := runSmoke(*server, *name, *conv, *goal); err != nil {
		log.WithError(err).Fatal("smoke run failed")
	}
}

func runSmoke(server, name, conv string, goal int) error {
	room, err := createRoom(server, name, conv, goal)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	log.WithFields(logrus.Fields{"room": room.RoomID, "code": room.RoomCode}).Info("room created")

	wsURL := fmt.Sprintf("%s/ws/rooms/%s?participantId=%s&token=%s",
		strings.Replace(server, "http", "ws", 1), room.RoomID, room.ParticipantID, room.ParticipantToken)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial ws: %w", err)
	}
	defer conn.Close()

	if err := startRoom(server, room); err != nil {
		return fmt.Errorf("start room: %w", err)
	}
	if err := send(conn, map[string]any{"type": "sync_ack", "round": 1}); err != nil {
		return err
	}

	for {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		tag, _ := frame["type"].(string)
		switch tag {
		case "sync_round_complete":
			round := int(frame["round"].(float64))
			if round < 3 {
				if err := send(conn, map[string]any{"type": "sync_ack", "round": round + 1}); err != nil {
					return err
				}
			}
		case "game_started":
			log.Info("game started")
		case "question":
			value, _ := frame["value"].(string)
			answer := solve(value, conv)
			log.WithFields(logrus.Fields{"value": value, "answer": answer}).Info("answering")
			if err := send(conn, map[string]any{"type": "answer_submit", "answer": answer}); err != nil {
				return err
			}
		case "answer_result":
			if correct, _ := frame["correct"].(bool); !correct {
				log.Warn("server rejected an answer the bot believed correct")
			}
		case "game_ended":
			log.WithField("reason", frame["reason"]).Info("game ended")
			if lb, ok := frame["leaderboard"]; ok {
				out, _ := json.MarshalIndent(lb, "", "  ")
				fmt.Println(string(out))
			}
			return nil
		case "protocol_error":
			return fmt.Errorf("protocol error: %v", frame["code"])
		}
	}
}

// solve computes the canonical answer for a question prompt.
func solve(value, conv string) string {
	switch {
	case strings.HasPrefix(conv, "binary-"):
		n, _ := strconv.Atoi(value)
		return fmt.Sprintf("%08b", n)
	case strings.HasPrefix(conv, "hex-"):
		n, _ := strconv.Atoi(value)
		return fmt.Sprintf("%02X", n)
	case conv == "ipv6-hextet":
		n, _ := strconv.Atoi(value)
		return fmt.Sprintf("%04X", n)
	case conv == "ipv4-full":
		parts := strings.Split(value, ".")
		bits := make([]string, len(parts))
		for i, p := range parts {
			n, _ := strconv.Atoi(p)
			bits[i] = fmt.Sprintf("%08b", n)
		}
		return strings.Join(bits, ".")
	}
	return ""
}

func createRoom(server, name, conv string, goal int) (*createRoomResponse, error) {
	body, _ := json.Marshal(map[string]any{
		"mode":            "classic",
		"conv":            conv,
		"goalType":        "first_to",
		"goalValue":       map[string]any{"firstTo": goal},
		"visibility":      "private",
		"maxPlayers":      4,
		"showLeaderboard": true,
		"displayName":     name,
	})
	resp, err := http.Post(server+"/api/mp/rooms", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	var out createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func startRoom(server string, room *createRoomResponse) error {
	body, _ := json.Marshal(map[string]any{"participantId": room.ParticipantID})
	resp, err := http.Post(server+"/api/mp/rooms/"+room.RoomCode+"/start", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return nil
}

func send(conn *websocket.Conn, msg map[string]any) error {
	return conn.WriteJSON(msg)
}
