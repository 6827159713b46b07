package lock

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// KeySeparator joins the parts of a composite lock key.
const KeySeparator = "_"

// JoinKey builds a lock key from a base name and the values that scope it.
//
//	JoinKey("order", 42, "eu") == "order_42_eu"
func JoinKey(base string, parts ...any) string {
	var sb strings.Builder

	sb.WriteString(base)

	for _, p := range parts {
		sb.WriteString(KeySeparator)
		sb.WriteString(fmt.Sprint(p))
	}

	return sb.String()
}

// NewToken returns a fresh ownership token.
func NewToken() string {
	return uuid.NewString()
}
