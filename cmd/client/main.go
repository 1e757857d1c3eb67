// Command client submits an audio file to the transcription server and waits
// for the result, either inline or by following the job's status stream.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

type submitResponse struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	CheckStatusURL string `json:"check_status_url"`
}

type statusMessage struct {
	JobID        string          `json:"job_id"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Error        string          `json:"error,omitempty"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "server base URL")
	file := flag.String("file", "", "audio file to transcribe")
	language := flag.String("language", "", "optional language hint, e.g. en")
	token := flag.String("token", os.Getenv("TRANSCRIBER_TOKEN"), "bearer token when the server requires auth")
	sync := flag.Bool("sync", false, "use the synchronous endpoint")
	flag.Parse()

	if *file == "" {
		log.Fatal("-file is required")
	}

	if *sync {
		body, err := upload(*server+"/transcribe", *file, *language, *token)
		if err != nil {
			log.Fatal("transcribe:", err)
		}
		os.Stdout.Write(body)
		fmt.Println()
		return
	}

	body, err := upload(*server+"/transcribe-async", *file, *language, *token)
	if err != nil {
		log.Fatal("submit:", err)
	}
	var submitted submitResponse
	if err := json.Unmarshal(body, &submitted); err != nil {
		log.Fatal("decode submit response:", err)
	}
	log.Printf("job %s %s", submitted.JobID, submitted.Status)

	if err := follow(*server, submitted.CheckStatusURL, *token); err != nil {
		log.Fatal("follow:", err)
	}
}

// upload posts the file as multipart form data and returns the response body
func upload(target, path, language, token string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if language != "" {
		writer.WriteField("language", language)
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, target, buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// follow connects to the job's status stream and prints every update until
// the server closes it after a terminal status
func follow(server, statusPath, token string) error {
	u, err := url.Parse(server)
	if err != nil {
		return err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = statusPath + "/ws"
	log.Printf("connecting to %s", u.String())

	headers := http.Header{}
	if token != "" {
		headers.Add("Authorization", "Bearer "+token)
	}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		return err
	}
	defer c.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan error, 1)
	go func() {
		for {
			var msg statusMessage
			if err := c.ReadJSON(&msg); err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					done <- nil
				} else {
					done <- err
				}
				return
			}
			switch {
			case msg.Error != "":
				log.Printf("server error: %s", msg.Error)
			case msg.Status == "completed":
				log.Printf("job %s completed", msg.JobID)
				os.Stdout.Write(msg.Result)
				fmt.Println()
			case msg.Status == "error":
				log.Printf("job %s failed: %s", msg.JobID, msg.ErrorMessage)
			default:
				log.Printf("job %s %s", msg.JobID, msg.Status)
			}
		}
	}()

	select {
	case err := <-done:
		return err
	case <-interrupt:
		log.Println("interrupt")
		// Cleanly close the connection by sending a close message and then
		// waiting (with timeout) for the server to close the connection.
		if err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
			return err
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return nil
	}
}
