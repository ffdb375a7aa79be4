package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/ent0n29/taskpal/internal/protocol"
)

type perfOptions struct {
	baseURL        string
	ownerID        int64
	turns          int
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	texts          []string
	verbose        bool
}

var defaultPerfTexts = []string{
	"what are my tasks?",
	"add buy milk tomorrow at 9",
	"list my tasks",
}

type perfSummary struct {
	Turns int           `json:"turns"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	Max   time.Duration `json:"max"`
}

func perfCmd() *cobra.Command {
	var opts perfOptions
	cmd := &cobra.Command{
		Use:   "perf",
		Short: "Replay chat turns against a running server and report round-trip latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.validate(); err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 8*time.Minute)
			defer cancel()
			sum, err := runPerf(ctx, opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "perf: turns=%d p50=%s p95=%s max=%s\n", sum.Turns, sum.P50, sum.P95, sum.Max)
			return printServerLatency(ctx, opts.baseURL, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:8080", "taskpal base URL")
	f.Int64Var(&opts.ownerID, "owner-id", 999999, "owner id used for the synthetic conversation")
	f.IntVar(&opts.turns, "turns", 10, "number of turns to replay")
	f.DurationVar(&opts.interTurnDelay, "inter-turn", 200*time.Millisecond, "delay between turns")
	f.DurationVar(&opts.turnTimeout, "turn-timeout", 30*time.Second, "timeout waiting for each reply")
	f.StringSliceVar(&opts.texts, "text", defaultPerfTexts, "messages to send, cycled across turns")
	f.BoolVar(&opts.verbose, "verbose", true, "print replay progress")
	return cmd
}

func (o *perfOptions) validate() error {
	o.baseURL = strings.TrimRight(strings.TrimSpace(o.baseURL), "/")
	if o.baseURL == "" {
		return fmt.Errorf("base-url is required")
	}
	if o.turns <= 0 {
		return fmt.Errorf("turns must be > 0")
	}
	if o.turnTimeout < time.Second {
		o.turnTimeout = time.Second
	}
	var texts []string
	for _, t := range o.texts {
		if t = strings.TrimSpace(t); t != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		return fmt.Errorf("text produced no non-empty messages")
	}
	o.texts = texts
	return nil
}

func runPerf(ctx context.Context, opts perfOptions, out io.Writer) (perfSummary, error) {
	wsURL, err := wsURLForOwner(opts.baseURL, opts.ownerID)
	if err != nil {
		return perfSummary{}, fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return perfSummary{}, fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	replies := make(chan protocol.AssistantReply, 32)
	readErr := make(chan error, 1)
	go perfReadLoop(conn, replies, readErr, out, opts.verbose)

	durations := make([]time.Duration, 0, opts.turns)
	for i := 0; i < opts.turns; i++ {
		text := opts.texts[i%len(opts.texts)]
		id := "perf-" + strconv.Itoa(i+1)
		start := time.Now()
		if err := conn.WriteJSON(protocol.UserText{Type: protocol.TypeUserText, ID: id, Text: text}); err != nil {
			return perfSummary{}, fmt.Errorf("turn %d send: %w", i+1, err)
		}
		reply, err := awaitReply(replies, readErr, id, opts.turnTimeout)
		if err != nil {
			return perfSummary{}, fmt.Errorf("turn %d await assistant_reply: %w", i+1, err)
		}
		elapsed := time.Since(start)
		durations = append(durations, elapsed)
		if opts.verbose {
			fmt.Fprintf(out, "perf: turn %d/%d kind=%s rtt=%s text=%q\n", i+1, opts.turns, reply.Kind, elapsed.Round(time.Millisecond), text)
		}
		if opts.interTurnDelay > 0 && i < opts.turns-1 {
			time.Sleep(opts.interTurnDelay)
		}
	}
	return summarize(durations), nil
}

func wsURLForOwner(baseURL string, ownerID int64) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/chat/ws"
	q := u.Query()
	q.Set("owner_id", strconv.FormatInt(ownerID, 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func perfReadLoop(conn *websocket.Conn, replies chan<- protocol.AssistantReply, readErr chan<- error, out io.Writer, verbose bool) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErr <- err:
			default:
			}
			return
		}
		var env struct {
			Type   protocol.MessageType `json:"type"`
			Code   string               `json:"code"`
			Detail string               `json:"detail"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		switch env.Type {
		case protocol.TypeAssistantReply:
			var reply protocol.AssistantReply
			if err := json.Unmarshal(data, &reply); err == nil {
				replies <- reply
			}
		case protocol.TypeErrorEvent:
			if verbose {
				fmt.Fprintf(out, "perf: error_event code=%s detail=%s\n", env.Code, env.Detail)
			}
		}
	}
}

func awaitReply(replies <-chan protocol.AssistantReply, readErr <-chan error, id string, timeout time.Duration) (protocol.AssistantReply, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case r := <-replies:
			if r.ReplyTo == id {
				return r, nil
			}
		case err := <-readErr:
			return protocol.AssistantReply{}, err
		case <-timer.C:
			return protocol.AssistantReply{}, fmt.Errorf("timeout after %s", timeout)
		}
	}
}

func summarize(durations []time.Duration) perfSummary {
	if len(durations) == 0 {
		return perfSummary{}
	}
	sorted := append([]time.Duration(nil), durations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	pick := func(q float64) time.Duration {
		idx := int(q*float64(len(sorted)-1) + 0.5)
		return sorted[idx]
	}
	return perfSummary{
		Turns: len(sorted),
		P50:   pick(0.50),
		P95:   pick(0.95),
		Max:   sorted[len(sorted)-1],
	}
}

func printServerLatency(ctx context.Context, baseURL string, out io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/perf/latency", nil)
	if err != nil {
		return err
	}
	res, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return fmt.Errorf("fetch server latency: %w", err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("server latency HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	fmt.Fprintf(out, "server stages: %s\n", strings.TrimSpace(string(body)))
	return nil
}
