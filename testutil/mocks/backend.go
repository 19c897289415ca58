// MockBackend 的推理后端测试模拟实现。
//
// 支持脚本化响应、按任务动作路由、错误注入与调用记录。
package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/BaSui01/drama/llm"
)

// ErrScriptExhausted 表示脚本响应已用尽且没有默认响应。
var ErrScriptExhausted = errors.New("mock backend: script exhausted")

// MockBackend 是 llm.Backend 的模拟实现
type MockBackend struct {
	mu sync.Mutex

	script   []string
	byAction map[string][]string
	fallback *string
	err      error
	errOn    map[string]error
	fn       func(ctx context.Context, job *llm.Job) (*llm.Response, error)

	inputTokens  int
	outputTokens int

	calls []*llm.Job
	seq   int
}

var _ llm.Backend = (*MockBackend)(nil)

// NewMockBackend 创建新的 MockBackend
func NewMockBackend() *MockBackend {
	return &MockBackend{
		byAction:     make(map[string][]string),
		errOn:        make(map[string]error),
		inputTokens:  10,
		outputTokens: 5,
	}
}

// WithScript 追加按顺序返回的响应
func (m *MockBackend) WithScript(responses ...string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
	return m
}

// WithActionScript 追加 Preset 等于 action 的任务使用的响应
func (m *MockBackend) WithActionScript(action string, responses ...string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byAction[action] = append(m.byAction[action], responses...)
	return m
}

// WithDefault 设置脚本用尽后的默认响应
func (m *MockBackend) WithDefault(response string) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &response
	return m
}

// WithError 让所有调用返回 err
func (m *MockBackend) WithError(err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithActionError 让 Preset 等于 action 的任务返回 err
func (m *MockBackend) WithActionError(action string, err error) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errOn[action] = err
	return m
}

// WithTokenUsage 设置每次响应报告的 Token 用量
func (m *MockBackend) WithTokenUsage(input, output int) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputTokens = input
	m.outputTokens = output
	return m
}

// WithSubmitFunc 设置自定义提交函数，优先于脚本
func (m *MockBackend) WithSubmitFunc(fn func(ctx context.Context, job *llm.Job) (*llm.Response, error)) *MockBackend {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Submit 实现 llm.Backend
func (m *MockBackend) Submit(ctx context.Context, job *llm.Job) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *job
	m.calls = append(m.calls, &clone)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := m.errOn[job.Preset]; ok {
		return nil, &llm.InferenceError{Reason: llm.ReasonRequestFailed, Job: job, Err: err}
	}
	if m.err != nil {
		return nil, &llm.InferenceError{Reason: llm.ReasonRequestFailed, Job: job, Err: m.err}
	}
	if m.fn != nil {
		return m.fn(ctx, job)
	}

	text, ok := m.next(job.Preset)
	if !ok {
		return nil, &llm.InferenceError{Reason: llm.ReasonInvalidResponse, Job: job, Err: ErrScriptExhausted}
	}
	m.seq++
	return &llm.Response{
		ID:           fmt.Sprintf("mock-%d", m.seq),
		Text:         text,
		InputTokens:  m.inputTokens,
		OutputTokens: m.outputTokens,
	}, nil
}

func (m *MockBackend) next(action string) (string, bool) {
	if queue := m.byAction[action]; len(queue) > 0 {
		m.byAction[action] = queue[1:]
		return queue[0], true
	}
	if len(m.script) > 0 {
		text := m.script[0]
		m.script = m.script[1:]
		return text, true
	}
	if m.fallback != nil {
		return *m.fallback, true
	}
	return "", false
}

// Calls 返回所有已提交任务的副本
func (m *MockBackend) Calls() []*llm.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.Job(nil), m.calls...)
}

// CallCount 返回调用次数
func (m *MockBackend) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall 返回最后一次提交的任务
func (m *MockBackend) LastCall() *llm.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// CallsWithPreset 返回 Preset 等于 action 的任务
func (m *MockBackend) CallsWithPreset(action string) []*llm.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*llm.Job
	for _, c := range m.calls {
		if c.Preset == action {
			out = append(out, c)
		}
	}
	return out
}

// Reset 清空调用记录
func (m *MockBackend) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.seq = 0
}
