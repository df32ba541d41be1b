package source

import (
	"fmt"
	"strconv"
	"time"
)

// stringify converts a loosely scanned column value into the string
// form the condition evaluator expects. NULL reports false.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	case []byte:
		return string(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		if t {
			return "1", true
		}
		return "0", true
	case time.Time:
		return t.UTC().Format(time.RFC3339), true
	}
	return fmt.Sprint(v), true
}
