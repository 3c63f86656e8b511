package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/codefionn/huddle/internal/secrets"
	"github.com/codefionn/huddle/internal/store"
	"github.com/codefionn/huddle/internal/web"
)

func runSendMessage(args []string) error {
	var configPath, room, message, server string
	fs := newFlagSet("send-message", &configPath)
	fs.StringVar(&room, "room_name", "", "room to send to")
	fs.StringVar(&message, "message", "", "message text")
	fs.StringVar(&server, "server", "", "server base URL (default http://<listen_addr>)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if room == "" || message == "" {
		return errors.New("--room_name and --message are required")
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.AdminToken == "" {
		return errors.New("admin_token is not configured")
	}
	if server == "" {
		server = "http://" + cfg.ListenAddr
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := sendMessage(ctx, http.DefaultClient, server, cfg.AdminToken, room, message)
	if err != nil {
		return err
	}
	fmt.Printf("Delivered to %d connection(s) in %s\n", res.Delivered, res.Room)
	return nil
}

// sendMessage posts message to the admin endpoint of the server at base.
func sendMessage(ctx context.Context, client *http.Client, base, token, room, message string) (*web.AdminMessageResponse, error) {
	body, err := json.Marshal(web.AdminMessageRequest{Message: message})
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(base, "/") + "/admin/rooms/" + url.PathEscape(room) + "/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e web.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return nil, fmt.Errorf("server rejected message: %s", e.Error)
		}
		return nil, fmt.Errorf("server rejected message: %s", resp.Status)
	}

	var out web.AdminMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("invalid server response: %w", err)
	}
	return &out, nil
}

func runUserAdd(args []string) error {
	var configPath string
	fs := newFlagSet("user-add", &configPath)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: huddle user-add <username>")
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	password, err := promptForPassword("Password: ")
	if err != nil {
		return err
	}
	hash, err := secrets.HashPassword(password)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	u, err := st.CreateUser(context.Background(), fs.Arg(0), hash)
	if err != nil {
		return err
	}
	fmt.Printf("Created user %s (id %d)\n", u.Username, u.ID)
	return nil
}

func runRoomAdd(args []string) error {
	var configPath string
	fs := newFlagSet("room-add", &configPath)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: huddle room-add <name>")
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	room, created, err := st.GetOrCreateRoom(context.Background(), fs.Arg(0))
	if err != nil {
		return err
	}
	if created {
		fmt.Printf("Created room %s\n", room.Name)
	} else {
		fmt.Printf("Room %s already exists\n", room.Name)
	}
	return nil
}

func promptForPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	fmt.Fprint(os.Stderr, prompt)

	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(pw)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
