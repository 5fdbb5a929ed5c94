package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewDefaultsToInfoOnBadLevel(t *testing.T) {
	log := New("not-a-level")
	l, ok := log.(*logrus.Logger)
	if !ok {
		t.Fatalf("New() returned %T, want *logrus.Logger", log)
	}
	if l.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want Info", l.GetLevel())
	}
}

func TestNewHonorsRequestedLevel(t *testing.T) {
	log := New("debug")
	l := log.(*logrus.Logger)
	if l.GetLevel() != logrus.DebugLevel {
		t.Fatalf("level = %v, want Debug", l.GetLevel())
	}
}

func TestDefaultReturnsStandardLogger(t *testing.T) {
	if Default() != logrus.StandardLogger() {
		t.Fatal("Default() did not return logrus.StandardLogger()")
	}
}
