// Package gtin 提供 GTIN/EAN 条码的清洗与 Luhn 校验。
package gtin

import (
	"regexp"
	"strings"
)

var digitRunRe = regexp.MustCompile(`\d{8,14}`)

// 合法条码长度：EAN-8、UPC-A、EAN-13、GTIN-14。
var validLengths = map[int]bool{8: true, 12: true, 13: true, 14: true}

// Clean 去除空白与连字符等非数字字符。
func Clean(code string) string {
	var b strings.Builder
	for _, r := range code {
		if r >= '0' && r <= '9' {
			b.WriteByte(byte(r))
		}
	}
	return b.String()
}

// Valid 判断清洗后的条码长度合法且 Luhn 校验通过。
func Valid(code string) bool {
	cleaned := Clean(code)
	if !validLengths[len(cleaned)] {
		return false
	}
	return luhn(cleaned)
}

// Normalize 返回清洗后的合法条码，非法输入返回空串。
func Normalize(code string) string {
	cleaned := Clean(code)
	if !validLengths[len(cleaned)] || !luhn(cleaned) {
		return ""
	}
	return cleaned
}

// FindCandidates 在任意文本中扫描 Luhn 合法的数字串，按出现顺序去重返回。
func FindCandidates(text string, limit int) []string {
	if limit <= 0 {
		limit = 3
	}
	seen := make(map[string]struct{})
	out := make([]string, 0, limit)
	for _, run := range digitRunRe.FindAllString(text, -1) {
		// 优先整串，再尝试 13/12/14/8 位前缀，覆盖数字被拼接的情况。
		for _, n := range []int{len(run), 13, 12, 14, 8} {
			if n > len(run) || !validLengths[n] {
				continue
			}
			candidate := run[:n]
			if !luhn(candidate) {
				continue
			}
			if _, ok := seen[candidate]; ok {
				break
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
			break
		}
		if len(out) >= limit {
			break
		}
	}
	return out
}

// luhn 自右向左隔位加倍求和，对 10 取模为零即通过。
func luhn(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}
