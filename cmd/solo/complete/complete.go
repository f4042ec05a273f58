package completecmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/solo/pkg/llm"
)

const completeLongDesc string = `Send a prompt to a running solo server and print the reply.

By default the prompt is sent as a single user turn to the chat endpoint and
the reply is streamed as it is generated. With --raw the prompt is continued
verbatim by the completion endpoint.

Examples:
  solo complete "What is the capital of France?"
  solo complete --system "You are terse." "Explain TCP"
  solo complete --raw --stop "." "Once upon a time"`

const completeShortDesc string = "Request a completion from a solo server"

type completeCommander struct {
	serverURL string
	system    string
	stop      string
	raw       bool
	noStream  bool
}

func NewCompleteCmd() *cobra.Command {
	cmder := &completeCommander{}

	cmd := &cobra.Command{
		Use:   "complete <prompt...>",
		Short: completeShortDesc,
		Long:  completeLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var stop *string
			if cmd.Flags().Changed("stop") {
				stop = &cmder.stop
			}
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), stop)
		},
	}

	cmd.Flags().StringVar(&cmder.serverURL, "server", "http://localhost:8000", "solo server URL")
	cmd.Flags().StringVar(&cmder.system, "system", "", "System instruction for chat requests")
	cmd.Flags().StringVar(&cmder.stop, "stop", "", "Stop sequence")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Continue the prompt verbatim instead of chatting")
	cmd.Flags().BoolVar(&cmder.noStream, "no-stream", false, "Wait for the whole reply")

	return cmd
}

func (c *completeCommander) run(ctx context.Context, out io.Writer, prompt string, stop *string) error {
	serverURL := strings.TrimRight(c.serverURL, "/")
	stream := !c.noStream

	var (
		path string
		body any
	)
	if c.raw {
		path = "/v1/completions"
		body = llm.CompletionRequest{Prompt: prompt, Stream: stream, Stop: stop}
	} else {
		var messages []llm.Message
		if c.system != "" {
			messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: c.system})
		}
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

		path = "/v1/chat/completions"
		body = llm.ChatRequest{Messages: messages, Stream: stream, Stop: stop}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("could not marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return serverError(resp)
	}

	if stream {
		err = readStream(resp.Body, out)
	} else {
		err = readAggregate(resp.Body, out)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	return nil
}

func serverError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	var e llm.ErrorResponse
	if json.Unmarshal(data, &e) == nil && e.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

// event is either a response chunk or an error event.
type event struct {
	llm.Response
	Error string `json:"error"`
}

// readStream prints each chunk's delta until the end-of-stream sentinel.
func readStream(r io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		if data == llm.DoneSentinel {
			return nil
		}

		var ev event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return fmt.Errorf("could not decode event: %w", err)
		}
		if ev.Error != "" {
			return errors.New(ev.Error)
		}
		if len(ev.Choices) == 0 {
			continue
		}

		choice := ev.Choices[0]
		switch {
		case choice.Delta != nil && choice.Delta.Content != nil:
			fmt.Fprint(out, *choice.Delta.Content)
		case choice.Text != nil:
			fmt.Fprint(out, *choice.Text)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stream: %w", err)
	}
	return errors.New("stream ended before completion")
}

func readAggregate(r io.Reader, out io.Writer) error {
	var resp llm.Response
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return fmt.Errorf("could not decode response: %w", err)
	}

	fmt.Fprint(out, resp.Response)
	return nil
}
