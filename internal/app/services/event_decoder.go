package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	log "github.com/sirupsen/logrus"

	"audit-agent/internal/app/models"
)

var ErrStreamIdle = errors.New("analysis stream idle timeout")

const readChunkSize = 4096

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// decodeState 在读循环中逐次传递，不依赖闭包捕获
type decodeState struct {
	TaskID string
	Buffer []byte
	Done   bool
}

// feed 追加一个数据块并处理其中所有完整的行
func (st decodeState) feed(chunk []byte, emit func(models.Event)) decodeState {
	st.Buffer = append(st.Buffer, chunk...)
	for !st.Done {
		i := bytes.IndexByte(st.Buffer, '\n')
		if i < 0 {
			break
		}
		line := st.Buffer[:i]
		st.Buffer = st.Buffer[i+1:]
		st = st.line(line, emit)
	}
	if len(st.Buffer) == 0 {
		st.Buffer = nil
	}
	return st
}

func (st decodeState) line(line []byte, emit func(models.Event)) decodeState {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, dataPrefix) {
		return st
	}
	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 {
		return st
	}
	if bytes.Equal(payload, doneMarker) {
		st.Done = true
		emit(models.DoneEvent{})
		return st
	}

	var raw models.RawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		log.Warnf("skip malformed event line: %v, payload: %.200s", err, payload)
		return st
	}
	if raw.Event == "" {
		log.Warnf("skip event without name, payload: %.200s", payload)
		return st
	}
	if st.TaskID == "" && raw.TaskID != "" {
		st.TaskID = raw.TaskID
	}
	e := raw.ToEvent(payload)
	if _, ok := e.(models.DoneEvent); ok {
		st.Done = true
	}
	emit(e)
	return st
}

// DecodeEventStream 逐块读取平台事件流，按到达顺序回调。
// 流结束时保证恰好一个 done 事件；读取出错时只发出一个 error 事件。
func DecodeEventStream(r io.Reader, onEvent func(models.Event)) (string, error) {
	st := decodeState{}
	buf := make([]byte, readChunkSize)
	for !st.Done {
		n, err := r.Read(buf)
		if n > 0 {
			st = st.feed(buf[:n], onEvent)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if st.Done {
				break
			}
			onEvent(models.ErrorEvent{
				TaskID:  st.TaskID,
				Message: fmt.Sprintf("读取分析结果流失败: %v", err),
			})
			return st.TaskID, err
		}
	}
	if len(st.Buffer) > 0 && !st.Done {
		log.Debugf("discard %d trailing bytes without line end", len(st.Buffer))
	}
	if !st.Done {
		onEvent(models.DoneEvent{})
	}
	return st.TaskID, nil
}

// idleReader 每读到数据就重置空闲计时器，超时后读操作返回 ErrStreamIdle
type idleReader struct {
	ctx   context.Context
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.idle)
	}
	if err != nil && !errors.Is(err, io.EOF) && ir.ctx.Err() != nil {
		err = context.Cause(ir.ctx)
	}
	return n, err
}
