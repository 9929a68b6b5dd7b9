package utils

import (
	"fmt"
	"strings"
)

func EscapeMd(s string) string {
	repl := []string{"*", "\\*", "_", "\\_", "`", "\\`", "~", "\\~"}
	r := strings.NewReplacer(repl...)
	return r.Replace(s)
}

func PrettyTime(sec int) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func PrettyTimeMS(ms int64) string {
	return PrettyTime(int(ms / 1000))
}
