package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/switchboard/internal/cli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions(t *testing.T) {
	app := build(t, nil)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, cli.ListSessions(ctx, app, &out))
	assert.Equal(t, "No active sessions found.\n", out.String())

	for _, u := range []string{"bob", "alice"} {
		_, err := app.Orchestrator.Turn(ctx, u, "hi")
		require.NoError(t, err)
	}

	out.Reset()
	require.NoError(t, cli.ListSessions(ctx, app, &out))
	assert.Equal(t, "Active Sessions:\n- alice\n- bob\n", out.String())

	out.Reset()
	require.NoError(t, cli.InspectSession(ctx, app, "alice", false, &out))
	var st map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &st))
	assert.Equal(t, "alice", st["user_id"])

	out.Reset()
	require.NoError(t, cli.InspectSession(ctx, app, "alice", true, &out))
	assert.True(t, strings.HasPrefix(out.String(), "graph TD"))
	assert.Contains(t, out.String(), "class routing_agent")

	out.Reset()
	err := cli.RemoveSessions(ctx, app, []string{"alice", "carol"}, &out)
	assert.Error(t, err)
	assert.Equal(t, "Removed session 'alice'\nNo session for 'carol'\n", out.String())

	err = cli.InspectSession(ctx, app, "alice", false, io.Discard)
	assert.ErrorContains(t, err, "error loading session 'alice'")
}

func TestPrintGraph(t *testing.T) {
	app := build(t, nil)

	var out bytes.Buffer
	require.NoError(t, cli.PrintGraph(app, "mermaid", &out))
	assert.Contains(t, out.String(), "routing_agent --> tutor_agent")

	out.Reset()
	require.NoError(t, cli.PrintGraph(app, "json", &out))
	var desc struct {
		Entry string `json:"entry"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &desc))
	assert.Equal(t, "routing_agent", desc.Entry)

	assert.Error(t, cli.PrintGraph(app, "dot", &out))
}

func TestValidate(t *testing.T) {
	app := build(t, nil)
	var out bytes.Buffer
	cli.Validate(app, &out)
	assert.Contains(t, out.String(), "Config is valid (model=scripted, store=memory, search=none).")
	assert.Contains(t, out.String(), `entry "routing_agent"`)
}

func TestRunChat(t *testing.T) {
	app := build(t, nil)

	var out bytes.Buffer
	err := cli.RunChat(context.Background(), app, cli.ChatOptions{
		UserID: "u1",
		In:     strings.NewReader("hello\n/quit\n"),
		Out:    &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "You said: hello")

	// A second chat resumes the stored session.
	out.Reset()
	err = cli.RunChat(context.Background(), app, cli.ChatOptions{
		UserID: "u1",
		In:     strings.NewReader(""),
		Out:    &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), ">>> Resuming session of 'u1' (1 turns).")
}

func TestRunChat_JSON(t *testing.T) {
	app := build(t, nil)

	var out bytes.Buffer
	err := cli.RunChat(context.Background(), app, cli.ChatOptions{
		UserID: "u1",
		JSON:   true,
		In:     strings.NewReader(`{"message":"hey"}` + "\n"),
		Out:    &out,
	})
	require.NoError(t, err)

	var reply struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(&out).Decode(&reply))
	assert.Equal(t, "You said: hey", reply.Message)
	assert.Equal(t, "done", reply.Status)
}

func TestServe_GracefulShutdown(t *testing.T) {
	app := build(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cli.Serve(ctx, app, ln) }()

	url := fmt.Sprintf("http://%s/v1/turns", ln.Addr())
	resp, err := http.Post(url, "application/json", strings.NewReader(`{"user_id":"u1","message":"hi"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "You said: hi")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(cli.ShutdownTimeout + time.Second):
		t.Fatal("server did not stop")
	}
}
