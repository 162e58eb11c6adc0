package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	amountStripper = strings.NewReplacer("¥", "", "￥", "", "$", "", ",", "")
	amountPattern  = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

// NormalizeAmount 去掉货币符号、千分位和空白后解析金额，无法解析时返回 nil
func NormalizeAmount(s string) *float64 {
	cleaned := amountStripper.Replace(s)
	cleaned = strings.Join(strings.Fields(cleaned), "")
	if !amountPattern.MatchString(cleaned) {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}
