package omniagent

import (
	"errors"
	"fmt"
	"strings"
)

type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err looks like a missing-model error, used to
// advance through model fallback candidates.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var he *ErrHTTP
	if errors.As(err, &he) && he.Status == 404 {
		return true
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "not_found") || strings.Contains(s, "not found") || strings.Contains(s, "404")
}
