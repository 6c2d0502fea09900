package provider

import "math/rand/v2"

const localPartAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// RandomLocalPart 生成 8 位随机前缀，作为"新地址"请求的提示；最终地址以提供方返回为准。
func RandomLocalPart() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = localPartAlphabet[rand.IntN(len(localPartAlphabet))]
	}
	return string(b)
}
