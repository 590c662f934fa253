package api_test

import (
	"fmt"
	"strconv"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprint(v)
}
