// Command wordlog is a signflow plugin that appends every word it receives to
// a text file. Build it next to its plugin.json:
//
//	go build -o plugins/wordlog/wordlog ./plugins/wordlog
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Request mirrors the request written by the plugin executor.
type Request struct {
	Word struct {
		SessionID   string    `json:"session_id"`
		Language    string    `json:"language"`
		Mode        string    `json:"mode"`
		Gloss       string    `json:"gloss"`
		Confidence  float64   `json:"confidence"`
		TargetGloss string    `json:"target_gloss"`
		Correct     bool      `json:"correct"`
		At          time.Time `json:"at"`
	} `json:"word"`
	Config json.RawMessage `json:"config"`
}

// Response is written to stdout.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type config struct {
	Path string `json:"path"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}

	cfg := config{Path: "words.txt"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeResponse(fmt.Errorf("invalid config: %w", err))
			return
		}
	}

	writeResponse(appendWord(cfg.Path, req))
}

func appendWord(path string, req Request) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := req.Word
	line := fmt.Sprintf("%s\t%s\t%s\t%.2f", w.At.Format(time.RFC3339), w.Language, w.Gloss, w.Confidence)
	if w.Mode == "TRAINING" {
		line += fmt.Sprintf("\ttarget=%s\tcorrect=%t", w.TargetGloss, w.Correct)
	}
	_, err = fmt.Fprintln(f, line)
	return err
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
