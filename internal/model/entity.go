package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// provisionalMarker prefixes the local part of a client-assigned key.
const provisionalMarker = "~"

// Entity carries the identity and bookkeeping fields shared by every model.
// IsNew and IsDeleted are client-side flags and never serialized.
type Entity struct {
	Key      string    `json:"Key"`
	Created  time.Time `json:"Created"`
	Modified time.Time `json:"Modified"`

	IsNew     bool `json:"-"`
	IsDeleted bool `json:"-"`
}

// Base returns the entity itself. Structs embedding Entity satisfy Model
// through this method.
func (e *Entity) Base() *Entity {
	return e
}

// Model is implemented by every graph node and edge.
type Model interface {
	Base() *Entity
}

// NewKey returns a provisional key for a model of the given type.
func NewKey(typeName string) string {
	return typeName + "/" + provisionalMarker + uuid.NewString()
}

// IsProvisional reports whether key was assigned by the client.
func IsProvisional(key string) bool {
	_, local, err := SplitKey(key)
	return err == nil && strings.HasPrefix(local, provisionalMarker)
}

// SplitKey splits "<Type>/<local>" into its parts.
func SplitKey(key string) (typeName, local string, err error) {
	i := strings.IndexByte(key, '/')
	if i <= 0 || i == len(key)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return key[:i], key[i+1:], nil
}

// KeyOf returns the key of m, or "" for nil.
func KeyOf(m Model) string {
	if isNil(m) {
		return ""
	}
	return m.Base().Key
}

// MarkDeleted flags m as deleted on the client.
func MarkDeleted(m Model) {
	m.Base().IsDeleted = true
}

// CheckSavable returns an error when m cannot be sent to a server for
// saving or deleting: a deleted model cannot be saved, and a link cannot be
// persisted while an endpoint is marked deleted.
func CheckSavable(m Model, deleting bool) error {
	if !deleting && m.Base().IsDeleted {
		return fmt.Errorf("%w: %s", ErrModelDeleted, m.Base().Key)
	}
	l, ok := AsLink(m)
	if !ok {
		return nil
	}
	for _, end := range []Model{l.From, l.To} {
		if !isNil(end) && end.Base().IsDeleted {
			return fmt.Errorf("%w: %s -> %s", ErrDeletedEndpoint, m.Base().Key, end.Base().Key)
		}
	}
	return nil
}
