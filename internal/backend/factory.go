package backend

import (
	"errors"
	"fmt"
	"log/slog"
)

// Factory errors
var (
	ErrInvalidBackendType    = errors.New("invalid backend type")
	ErrBackendCreationFailed = errors.New("backend creation failed")
)

// Factory creates Backend instances based on configuration.
type Factory interface {
	CreateBackend(backendType string) (Backend, error)
	GetSupportedBackends() []string
	IsValidBackendType(backendType string) bool
}

// DefaultFactory implements Factory with a malgo-first fallback chain.
type DefaultFactory struct {
	newMalgo func() (Backend, error)
	newOto   func() Backend
	newNull  func() Backend
}

// NewFactory creates a DefaultFactory wired to the real backends.
func NewFactory() *DefaultFactory {
	return &DefaultFactory{
		newMalgo: func() (Backend, error) { return NewMalgoBackend() },
		newOto:   func() Backend { return NewOtoBackend() },
		newNull:  func() Backend { return NewNullBackend(true) },
	}
}

// NewFactoryWithConstructors creates a factory with injected constructors
// for testing.
func NewFactoryWithConstructors(newMalgo func() (Backend, error), newOto, newNull func() Backend) *DefaultFactory {
	return &DefaultFactory{newMalgo: newMalgo, newOto: newOto, newNull: newNull}
}

// CreateBackend creates a Backend instance of the specified type. An empty
// type defaults to "auto".
func (f *DefaultFactory) CreateBackend(backendType string) (Backend, error) {
	if backendType == "" {
		backendType = "auto"
	}

	slog.Debug("creating audio backend", "type", backendType)

	switch backendType {
	case "auto":
		return f.createAutoBackend()
	case "malgo":
		return f.newMalgo()
	case "oto":
		return f.newOto(), nil
	case "null":
		return f.newNull(), nil
	default:
		slog.Error("invalid backend type requested", "type", backendType)
		return nil, fmt.Errorf("%w: %s", ErrInvalidBackendType, backendType)
	}
}

// GetSupportedBackends returns all supported backend types.
func (f *DefaultFactory) GetSupportedBackends() []string {
	return []string{"auto", "malgo", "oto", "null"}
}

// IsValidBackendType checks whether a backend type is supported. The empty
// string is valid and defaults to auto.
func (f *DefaultFactory) IsValidBackendType(backendType string) bool {
	if backendType == "" {
		return true
	}
	for _, supported := range f.GetSupportedBackends() {
		if backendType == supported {
			return true
		}
	}
	return false
}

// createAutoBackend prefers malgo for its device enumeration and falls back
// to oto when the miniaudio context cannot initialize.
func (f *DefaultFactory) createAutoBackend() (Backend, error) {
	b, err := f.newMalgo()
	if err == nil {
		slog.Debug("auto-detection selected malgo")
		return b, nil
	}
	slog.Warn("malgo unavailable, falling back to oto", "error", err)
	return f.newOto(), nil
}
