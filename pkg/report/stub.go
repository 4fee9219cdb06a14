//go:build !consul

package report

// Enabled reports whether consul publishing is compiled in.
func Enabled() bool { return false }

// NewPublisher fails without the consul build tag.
func NewPublisher(_, _, _ string) (Publisher, error) { return nil, ErrDisabled }
