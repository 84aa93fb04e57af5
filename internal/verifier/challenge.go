// Package verifier 确认用户已抄下助记词: 随机挖空若干位置，要求用户补全。
package verifier

import (
	"errors"
	"math"
	"sort"
	"sync"

	"custody-wallet/pkg/bip39"
	"custody-wallet/pkg/safe_random"
)

const minPositions = 3

var (
	ErrPhraseTooShort = errors.New("助记词单词数不足")
	ErrClosed         = errors.New("挑战已完成，助记词已清除")
)

// Result 校验结果。Wrong 只包含出错的位置 (0 起)，从不包含正确单词
type Result struct {
	OK    bool
	Wrong []int
}

// Challenge 一次挖空挑战，可以对同一组位置重复作答
type Challenge struct {
	mu        sync.Mutex
	words     []string
	positions []int
	attempts  int
	closed    bool
}

// PositionCount 需要挖空的位置数: 约为单词数的四分之一，至少 3 个
func PositionCount(words int) int {
	k := int(math.Round(float64(words) / 4))
	if k < minPositions {
		k = minPositions
	}
	if k > words {
		k = words
	}
	return k
}

// NewChallenge 用加密安全的随机数选择位置
func NewChallenge(phrase string) (*Challenge, error) {
	words := bip39.Words(bip39.Normalize(phrase))
	if len(words) < minPositions {
		return nil, ErrPhraseTooShort
	}
	positions, err := safe_random.Sample(len(words), PositionCount(len(words)))
	if err != nil {
		return nil, err
	}
	return newChallenge(words, positions), nil
}

func newChallenge(words []string, positions []int) *Challenge {
	p := append([]int(nil), positions...)
	sort.Ints(p)
	return &Challenge{words: words, positions: p}
}

// Positions 需要补全的位置 (0 起，升序)
func (c *Challenge) Positions() []int {
	return append([]int(nil), c.positions...)
}

// WordCount 助记词单词数
func (c *Challenge) WordCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.words)
}

// Masked 其余单词原样显示，挖空的位置为空字符串
func (c *Challenge) Masked() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	out := append([]string(nil), c.words...)
	for _, p := range c.positions {
		out[p] = ""
	}
	return out, nil
}

// Verify answers 以位置 (0 起) 为键；未作答的位置视为错误，非挑战位置的答案忽略
func (c *Challenge) Verify(answers map[int]string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return Result{}, ErrClosed
	}
	c.attempts++

	var wrong []int
	for _, p := range c.positions {
		got, ok := answers[p]
		if !ok || got != c.words[p] {
			wrong = append(wrong, p)
		}
	}
	return Result{OK: len(wrong) == 0, Wrong: wrong}, nil
}

// Attempts 已作答次数
func (c *Challenge) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Complete 清除内存中的助记词，之后挑战不可再用
func (c *Challenge) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.words {
		c.words[i] = ""
	}
	c.words = nil
	c.closed = true
}
