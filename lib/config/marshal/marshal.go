// Package marshal decodes and encodes configuration files, picking the
// format from the extension of the file.
package marshal

import (
	"encoding/json"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v2"
)

// Marshaller turns objects into bytes, and vice-versa.
type Marshaller interface {
	Marshal(value interface{}) ([]byte, error)
	Unmarshal(data []byte, value interface{}) error
}

type FileMarshaller interface {
	Marshaller
	// Returns the extensions used by files in this format, preferred first.
	Extensions() []string
}

type JsonEncoder struct{}

func (j *JsonEncoder) Marshal(value interface{}) ([]byte, error) {
	return json.MarshalIndent(value, "", "  ")
}
func (j *JsonEncoder) Unmarshal(data []byte, value interface{}) error {
	return json.Unmarshal(data, value)
}
func (j *JsonEncoder) Extensions() []string {
	return []string{"json"}
}

type TomlEncoder struct{}

func (j *TomlEncoder) Marshal(value interface{}) ([]byte, error) {
	return toml.Marshal(value)
}
func (j *TomlEncoder) Unmarshal(data []byte, value interface{}) error {
	return toml.Unmarshal(data, value)
}
func (j *TomlEncoder) Extensions() []string {
	return []string{"toml"}
}

type YamlEncoder struct{}

func (j *YamlEncoder) Marshal(value interface{}) ([]byte, error) {
	return yaml.Marshal(value)
}
func (j *YamlEncoder) Unmarshal(data []byte, value interface{}) error {
	return yaml.UnmarshalStrict(data, value)
}
func (j *YamlEncoder) Extensions() []string {
	return []string{"yaml", "yml"}
}
