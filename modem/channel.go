package modem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"i4.energy/across/cellular/at"
)

const readBufferSize = 1024

const (
	// staleSettle is the quiet period that ends the drain after an
	// abandoned exchange.
	staleSettle = 50 * time.Millisecond
	// staleDrainLimit bounds the drain on a chatty line.
	staleDrainLimit = time.Second
)

// promptTerminators end the first phase of a payload exchange.
var promptTerminators = []string{at.TermPrompt, at.TermError, at.CmeError, at.CmsError}

// Response is the raw text received between a command and its terminator.
type Response struct {
	// Text holds everything received for the command, intermediate lines
	// and the terminator included.
	Text string
	// Terminator is the terminator that ended the response.
	Terminator string
}

// OK reports whether the response ended with the success code.
func (r Response) OK() bool {
	return r.Terminator == at.TermOK
}

// Rejected reports whether the response ended with a failure code.
func (r Response) Rejected() bool {
	switch r.Terminator {
	case at.TermError, at.CmeError, at.CmsError:
		return true
	}
	return false
}

// Lines returns the non-empty lines of the response.
func (r Response) Lines() []string {
	return at.Lines(r.Text)
}

func (r Response) String() string {
	return strings.TrimSpace(r.Text)
}

// rejection describes a failed response for error messages.
func (r Response) rejection() string {
	if line, ok := at.ResponseError(r.Text); ok {
		return line
	}
	return strings.TrimSpace(r.Text)
}

// Commander sends one command and returns its raw response.
type Commander interface {
	Send(ctx context.Context, cmd string, timeout time.Duration) (Response, error)
}

// Channel runs the command/response protocol over a Transport. Only one
// exchange is in flight at a time, so responses come back in command order.
//
// The Channel owns the Transport: a background reader feeds every received
// byte into the channel and Close closes the Transport.
//
// After a timeout or cancellation the device may still answer the abandoned
// command. The next exchange first drains the line until it has been quiet
// for staleSettle (at most staleDrainLimit) so the late answer is not taken
// for its own. An answer slower than that cannot be told apart.
type Channel struct {
	transport Transport
	logger    *slog.Logger

	// mu is held for a whole exchange, including both phases of a payload
	// exchange.
	mu      sync.Mutex
	pending []byte
	stale   bool

	chunks    chan []byte
	readErr   error
	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewChannel takes ownership of t and starts reading from it. A nil logger
// discards output.
func NewChannel(t Transport, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Channel{
		transport: t,
		logger:    logger,
		chunks:    make(chan []byte, 16),
		stop:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// readLoop is the only reader of the transport. readErr is published by
// closing chunks.
func (c *Channel) readLoop() {
	defer close(c.chunks)
	buf := make([]byte, readBufferSize)
	for {
		n, err := c.transport.Read(buf)
		if n > 0 {
			select {
			case c.chunks <- bytes.Clone(buf[:n]):
			case <-c.stop:
				c.readErr = io.EOF
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
		select {
		case <-c.stop:
			c.readErr = io.EOF
			return
		default:
		}
	}
}

// Send writes cmd followed by the line terminator and collects the response
// until OK, ERROR, +CME ERROR or +CMS ERROR. A failure terminator is returned
// as data; use Response.OK to classify it.
//
// Send fails with ErrTimeout when no terminator arrived within timeout and
// with ErrTransportClosed when the stream ended. There are no retries.
func (c *Channel) Send(ctx context.Context, cmd string, timeout time.Duration) (Response, error) {
	return c.SendUntil(ctx, cmd, timeout, at.DefaultTerminators...)
}

// SendUntil is Send with a custom terminator set, for commands that answer
// with something other than the final result codes.
func (c *Channel) SendUntil(ctx context.Context, cmd string, timeout time.Duration, terminators ...string) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exchange(ctx, cmd, timeout, terminators)
}

// Prompt starts a payload exchange: it sends cmd and waits for the device's
// "ready to receive" prompt. The channel stays reserved until the returned
// exchange is submitted or aborted.
//
// If the device answers with a failure code instead of the prompt, Prompt
// returns ErrProtocolRejected and the channel is released.
func (c *Channel) Prompt(ctx context.Context, cmd string, timeout time.Duration) (*PayloadExchange, error) {
	c.mu.Lock()
	resp, err := c.exchange(ctx, cmd, timeout, promptTerminators)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	if resp.Terminator != at.TermPrompt {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s: %s", ErrProtocolRejected, cmd, resp.rejection())
	}
	return &PayloadExchange{channel: c, cmd: cmd, Prompt: resp}, nil
}

// Close stops the reader and closes the transport.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.closeErr = c.transport.Close()
	})
	return c.closeErr
}

func (c *Channel) closed() bool {
	select {
	case <-c.stop:
		return true
	default:
		return false
	}
}

// exchange requires c.mu.
func (c *Channel) exchange(ctx context.Context, cmd string, timeout time.Duration, terminators []string) (Response, error) {
	if c.closed() {
		return Response{}, fmt.Errorf("%w: %s", ErrTransportClosed, cmd)
	}
	if err := c.discardStale(ctx); err != nil {
		return Response{}, fmt.Errorf("%s: %w", cmd, err)
	}

	c.logger.Debug("send", "cmd", cmd)
	if err := c.write([]byte(strings.TrimSpace(cmd) + at.CR)); err != nil {
		return Response{}, fmt.Errorf("write command %q: %w", cmd, err)
	}
	resp, err := c.await(ctx, timeout, terminators)
	if err != nil {
		return resp, fmt.Errorf("%s: %w", cmd, err)
	}
	return resp, nil
}

func (c *Channel) write(p []byte) error {
	if _, err := c.transport.Write(p); err != nil {
		if c.closed() || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
			return fmt.Errorf("%w: %w", ErrTransportClosed, err)
		}
		return err
	}
	return nil
}

// await accumulates received bytes until one of terminators appears. Bytes
// past the terminator are kept for the next exchange. On timeout or
// cancellation the partial response is dropped together with anything
// still queued when the next exchange starts.
func (c *Channel) await(ctx context.Context, timeout time.Duration, terminators []string) (Response, error) {
	buf := c.pending
	c.pending = nil

	if resp, ok := c.match(buf, terminators); ok {
		return resp, nil
	}

	timer := time.NewTimer(max(timeout, 0))
	defer timer.Stop()

	for {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				cause := c.readErr
				if cause == nil {
					cause = io.EOF
				}
				return Response{Text: string(buf)}, fmt.Errorf("%w: %w", ErrTransportClosed, cause)
			}
			buf = append(buf, chunk...)
			if resp, ok := c.match(buf, terminators); ok {
				return resp, nil
			}

		case <-timer.C:
			c.stale = true
			c.logger.Debug("timeout", "after", timeout, "partial", string(buf))
			return Response{}, ErrTimeout

		case <-ctx.Done():
			c.stale = true
			return Response{}, ctx.Err()
		}
	}
}

func (c *Channel) match(buf []byte, terminators []string) (Response, bool) {
	end, term, ok := at.FindTerminator(buf, terminators)
	if !ok {
		return Response{}, false
	}
	if end < len(buf) {
		c.pending = bytes.Clone(buf[end:])
	}
	resp := Response{Text: string(buf[:end]), Terminator: term}
	c.logger.Debug("recv", "text", resp.String())
	return resp, true
}

// discardStale drops bytes that belong to an abandoned exchange, waiting
// for the line to settle first.
func (c *Channel) discardStale(ctx context.Context) error {
	if !c.stale {
		return nil
	}
	c.stale = false
	c.pending = nil

	limit := time.NewTimer(staleDrainLimit)
	defer limit.Stop()
	quiet := time.NewTimer(staleSettle)
	defer quiet.Stop()

	for {
		select {
		case chunk, ok := <-c.chunks:
			if !ok {
				return nil
			}
			c.discard(chunk)
			quiet.Reset(staleSettle)
		case <-quiet.C:
			return nil
		case <-limit.C:
			c.logger.Warn("Line did not settle", "after", staleDrainLimit)
			return nil
		case <-ctx.Done():
			c.stale = true
			return ctx.Err()
		}
	}
}

func (c *Channel) discard(chunk []byte) {
	for _, line := range at.Lines(string(chunk)) {
		if at.Classify(line) == at.TypeURC {
			c.logger.Info("Unsolicited result code", "line", line)
			continue
		}
		c.logger.Debug("discard", "line", line)
	}
}

// PayloadExchange is a payload exchange whose prompt has been received.
// Exactly one of Submit or Abort must be called to release the channel.
type PayloadExchange struct {
	channel *Channel
	cmd     string
	done    bool

	// Prompt is the response that ended with the prompt.
	Prompt Response
}

// Submit writes payload followed by Ctrl-Z, flushes the transport and waits
// up to timeout for the final result.
//
// A payload containing Ctrl-Z or Esc is not written: the exchange is aborted
// and Submit fails with ErrInvalidParameter.
func (p *PayloadExchange) Submit(ctx context.Context, payload []byte, timeout time.Duration) (Response, error) {
	if p.done {
		return Response{}, ErrExchangeDone
	}
	p.done = true
	c := p.channel
	defer c.mu.Unlock()

	if err := at.CheckPayload(payload); err != nil {
		c.stale = true
		if werr := c.write([]byte(at.Esc)); werr != nil {
			return Response{}, fmt.Errorf("abort %q: %w", p.cmd, werr)
		}
		return Response{}, fmt.Errorf("%s: %w", p.cmd, err)
	}

	data := make([]byte, 0, len(payload)+1)
	data = append(append(data, payload...), at.CtrlZ...)
	if err := c.write(data); err != nil {
		return Response{}, fmt.Errorf("write payload for %q: %w", p.cmd, err)
	}
	if err := c.transport.Flush(); err != nil {
		return Response{}, fmt.Errorf("flush payload for %q: %w", p.cmd, err)
	}

	resp, err := c.await(ctx, timeout, at.DefaultTerminators)
	if err != nil {
		return resp, fmt.Errorf("%s: payload: %w", p.cmd, err)
	}
	return resp, nil
}

// Abort cancels the exchange by sending Esc instead of a payload.
func (p *PayloadExchange) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	c := p.channel
	defer c.mu.Unlock()

	// the device may still answer; treat whatever arrives as stale
	c.stale = true
	return c.write([]byte(at.Esc))
}
