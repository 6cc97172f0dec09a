/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package endpoint

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rulego/rulerouter/api/types"
)

const defaultMaxLineSize = 1024 * 1024

// Sender delivers a message to a node.
type Sender interface {
	Send(nodeId string, msg types.RuleMsg) error
}

// Lines 按行读取消息
// Lines reads newline-delimited envelopes and sends each one to its node.
type Lines struct {
	// DefaultNode receives envelopes that name no node.
	DefaultNode string
	// MaxLineSize bounds one line, defaulting to 1MB.
	MaxLineSize int
	Logger      types.Logger
}

// Serve reads r until EOF or until ctx is done and returns the number of messages sent.
// Malformed lines and send errors are logged and skipped.
func (l *Lines) Serve(ctx context.Context, r io.Reader, sender Sender) (int, error) {
	logger := types.NewLogger(l.Logger)
	maxSize := l.MaxLineSize
	if maxSize <= 0 {
		maxSize = defaultMaxLineSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSize)
	sent := 0
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		b := bytes.TrimSpace(scanner.Bytes())
		if len(b) == 0 {
			continue
		}
		if err := l.send(b, sender); err != nil {
			logger.Printf("line %d: %v", line, err)
			continue
		}
		sent++
	}
	return sent, scanner.Err()
}

func (l *Lines) send(b []byte, sender Sender) error {
	env, err := Decode(b)
	if err != nil {
		return err
	}
	node := env.Node
	if node == "" {
		node = l.DefaultNode
	}
	if node == "" {
		return ErrNoNode
	}
	return sender.Send(node, env.RuleMsg)
}

// Writer 按行输出消息，可并发使用
// Writer writes node outputs as newline-delimited envelopes. It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
	// Failures also writes reported failures.
	Failures bool
}

// NewWriter creates a Writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// OnPort writes an emission. It matches engine.OnPortFunc.
func (w *Writer) OnPort(nodeId string, msg types.RuleMsg, port int) {
	b, err := Encode(nodeId, port, msg)
	if err != nil {
		// fields that cannot be encoded are dropped from the failure line
		b, err = EncodeFailure(nodeId, types.RuleMsg{Id: msg.Id, Ts: msg.Ts, Parts: msg.Parts}, fmt.Errorf("encode: %w", err))
		if err != nil {
			return
		}
	}
	w.write(b)
}

// OnFailure writes a failure if Failures is set. It matches engine.OnFailureFunc.
func (w *Writer) OnFailure(nodeId string, msg types.RuleMsg, err error) {
	if !w.Failures {
		return
	}
	b, encErr := EncodeFailure(nodeId, msg, err)
	if encErr != nil {
		return
	}
	w.write(b)
}

func (w *Writer) write(b []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = w.w.Write(append(b, '\n'))
}
