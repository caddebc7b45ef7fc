package petri

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/duke-git/lancet/v2/maputil"
	"github.com/duke-git/lancet/v2/slice"
)

// Marking 是网的一个全局状态：库所 ID → 令牌数。
// 按内容比较，零值条目与缺失条目等价。
type Marking map[string]int

// Tokens returns the token count of place.
func (m Marking) Tokens(place string) int {
	return m[place]
}

// Total returns the number of tokens in the marking.
func (m Marking) Total() int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

// Places returns the marked places in sorted order.
func (m Marking) Places() []string {
	places := maputil.Keys(maputil.Filter(m, func(_ string, c int) bool { return c > 0 }))
	slice.Sort(places)
	return places
}

// Key 返回规范化的字符串表示，用于去重。
// 库所 ID 可以包含任意字符，因此按 Go 字符串字面量引用后再拼接。
func (m Marking) Key() string {
	var sb strings.Builder
	for i, p := range m.Places() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.Quote(p))
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(m[p]))
	}
	return sb.String()
}

// String implements fmt.Stringer. 仅用于展示，不保证唯一。
func (m Marking) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, p := range m.Places() {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s:%d", p, m[p])
	}
	sb.WriteByte('}')
	return sb.String()
}

// Clone returns a copy without zero entries.
func (m Marking) Clone() Marking {
	out := make(Marking, len(m))
	for p, c := range m {
		if c > 0 {
			out[p] = c
		}
	}
	return out
}

// Equal reports whether both markings hold the same tokens.
func (m Marking) Equal(other Marking) bool {
	return m.Key() == other.Key()
}
