// Command access-log is a FaceGate hook that appends every attempt it is
// told about to a JSON lines file.
//
// Build it next to its manifest:
//
//	go build -o hooks/access-log/access-log ./hooks/access-log
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ayusman/facegate/internal/hook"
)

type config struct {
	Path string `json:"path"`
}

type entry struct {
	Event     string `json:"event"`
	User      string `json:"user,omitempty"`
	Reason    string `json:"reason,omitempty"`
	At        string `json:"at"`
	AttemptID string `json:"attempt_id"`
}

func main() {
	var req hook.Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		respond(fmt.Errorf("failed to decode request: %w", err))
		return
	}

	cfg := config{Path: "access.jsonl"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			respond(fmt.Errorf("invalid config: %w", err))
			return
		}
	}

	respond(appendEntry(cfg.Path, entry{
		Event:     req.Event,
		User:      req.Attempt.UserName,
		Reason:    req.Attempt.Reason,
		At:        req.Attempt.CreatedAt.Format(time.RFC3339),
		AttemptID: req.Attempt.ID,
	}))
}

func appendEntry(path string, e entry) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(e)
}

func respond(err error) {
	resp := hook.Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
