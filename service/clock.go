package service

import "time"

// Clock 时间来源，投票开放判断通过它取当前时间
type Clock interface {
	Now() time.Time
}

// SystemClock 系统时钟
type SystemClock struct{}

// Now 当前时间
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ClockFunc 函数形式的时钟
type ClockFunc func() time.Time

// Now 当前时间
func (f ClockFunc) Now() time.Time {
	return f()
}
