package screening

import (
	"strings"

	"screening-agent-go/internal/constants"
)

// NormalizePhone 将任意格式的电话号码归一化为可直接拨打的联系号码。
// 规则: 去掉所有非数字字符后，11位视为本地号码并补全国际区号，
// 13位视为已含区号直接使用，其余位数（包括空串）视为无可用联系方式。
// 纯函数，永不报错，无法识别时返回nil。
func NormalizePhone(raw string) *string {
	digits := stripNonDigits(raw)

	switch len(digits) {
	case constants.DomesticPhoneDigits:
		handle := constants.CountryCallingCode + digits
		return &handle
	case constants.FullPhoneDigits:
		return &digits
	default:
		return nil
	}
}

// stripNonDigits 去掉字符串中的所有非数字字符
func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
