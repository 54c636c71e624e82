package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

var (
	mu       sync.RWMutex
	minLevel = LevelInfo
	std      = log.New(os.Stdout, "", log.LstdFlags|log.Lmicroseconds)
)

// SetOutput 测试中可重定向到 buffer
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std.SetOutput(w)
}

func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// ParseLevel 未知级别按 INFO 处理
func ParseLevel(s string) Level {
	for l, name := range levelNames {
		if name == s {
			return l
		}
	}
	return LevelInfo
}

func output(l Level, format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	if l < minLevel {
		return
	}
	std.Output(3, levelNames[l]+" "+fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...interface{}) { output(LevelDebug, format, v...) }
func Infof(format string, v ...interface{})  { output(LevelInfo, format, v...) }
func Warnf(format string, v ...interface{})  { output(LevelWarn, format, v...) }
func Errorf(format string, v ...interface{}) { output(LevelError, format, v...) }
