package types

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// Engine represents the database engine type
type Engine int32

const (
	Engine_ENGINE_UNSPECIFIED Engine = 0
	Engine_MYSQL              Engine = 1
	Engine_POSTGRES           Engine = 2
	Engine_TIDB               Engine = 3
	Engine_SQLITE             Engine = 5
	Engine_MARIADB            Engine = 12
)

func (e Engine) String() string {
	switch e {
	case Engine_ENGINE_UNSPECIFIED:
		return "ENGINE_UNSPECIFIED"
	case Engine_MYSQL:
		return "MYSQL"
	case Engine_POSTGRES:
		return "POSTGRES"
	case Engine_TIDB:
		return "TIDB"
	case Engine_SQLITE:
		return "SQLITE"
	case Engine_MARIADB:
		return "MARIADB"
	default:
		return "UNKNOWN"
	}
}

// ParseEngine converts a user supplied engine name to an Engine.
func ParseEngine(s string) (Engine, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MYSQL":
		return Engine_MYSQL, nil
	case "POSTGRES", "POSTGRESQL":
		return Engine_POSTGRES, nil
	case "TIDB":
		return Engine_TIDB, nil
	case "SQLITE", "SQLITE3":
		return Engine_SQLITE, nil
	case "MARIADB":
		return Engine_MARIADB, nil
	default:
		return Engine_ENGINE_UNSPECIFIED, errors.Errorf("unsupported database engine: %s", s)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler for Engine
func (e *Engine) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	engine, err := ParseEngine(s)
	if err != nil {
		return err
	}
	*e = engine
	return nil
}

// MarshalYAML implements yaml.Marshaler for Engine
func (e Engine) MarshalYAML() (interface{}, error) {
	return e.String(), nil
}

// MarshalJSON implements json.Marshaler for Engine
func (e Engine) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON implements json.Unmarshaler for Engine
func (e *Engine) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	engine, err := ParseEngine(s)
	if err != nil {
		return err
	}
	*e = engine
	return nil
}

// Position represents a position in the source code
type Position struct {
	Line   int32 `json:"line" yaml:"line"`
	Column int32 `json:"column" yaml:"column"`
}
