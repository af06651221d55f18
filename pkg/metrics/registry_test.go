package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestInit_EnablesAndStoresRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	got := Init(reg)

	if !IsEnabled() {
		t.Error("expected IsEnabled() to be true after Init")
	}
	if got != reg {
		t.Error("expected Init to return the registry it was given")
	}
	if GetRegistry() != reg {
		t.Error("expected GetRegistry to return the initialised registry")
	}
}

func TestInit_NilCreatesRegistry(t *testing.T) {
	got := Init(nil)
	if got == nil {
		t.Fatal("expected Init(nil) to create a registry")
	}
	if GetRegistry() != got {
		t.Error("expected GetRegistry to return the created registry")
	}
}
