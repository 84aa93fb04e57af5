// Package safe_random 基于 crypto/rand 的随机数工具，用于盐、nonce 和挑战位置
package safe_random

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
)

// GenerateRandomBytes 生成 n 个安全随机字节
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("生成随机字节失败: %w", err)
	}
	return b, nil
}

// Intn 返回 [0, n) 内的均匀随机整数
func Intn(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("上界必须为正数: %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// Sample 从 [0, n) 中不重复地均匀抽取 k 个下标，结果升序
func Sample(n, k int) ([]int, error) {
	if k < 0 || k > n {
		return nil, fmt.Errorf("无法从 %d 个元素中抽取 %d 个", n, k)
	}
	// Fisher-Yates 的前 k 步
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j, err := Intn(n - i)
		if err != nil {
			return nil, err
		}
		pool[i], pool[i+j] = pool[i+j], pool[i]
	}
	out := append([]int(nil), pool[:k]...)
	sort.Ints(out)
	return out, nil
}
